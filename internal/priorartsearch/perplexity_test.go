package priorartsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerplexityLookupTurnsCitationsIntoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pplx-key", r.Header.Get("Authorization"))
		var body perplexityRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sonar", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Contains(t, body.Messages[1].Content, "smart valve leak detection")
		}

		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"Several leak detecting valves with pressure sensors exist."}}],
			"citations":["https://patents.google.com/patent/US9876543B2/en","https://example.com/valves"," ","https://example.com/three","https://example.com/four"],
			"search_results":[{"title":"Leak detecting valve","url":"https://patents.google.com/patent/US9876543B2/en","date":"2019-05-01"}]
		}`))
	}))
	defer srv.Close()

	src, err := NewPerplexitySource(PerplexityConfig{APIKey: "pplx-key", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "perplexity", src.Name())

	cands, err := src.Lookup(context.Background(), "smart valve leak detection")
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, "Leak detecting valve", cands[0].Title)
	assert.Equal(t, "US9876543B2", cands[0].PatentNumber)
	assert.Equal(t, "2019-05-01", cands[0].PublishedDate)
	assert.Equal(t, "Several leak detecting valves with pressure sensors exist.", cands[0].Text)
	assert.Equal(t, "https://example.com/valves", cands[1].Title)
	assert.Equal(t, "https://example.com/valves", cands[1].URL)
	assert.Equal(t, cands[0].Text, cands[1].Text)
	assert.Equal(t, "https://example.com/three", cands[2].URL)
}

func TestPerplexityWithoutCitationsReturnsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"No prior art found."}}]}`))
	}))
	defer srv.Close()

	src, err := NewPerplexitySource(PerplexityConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	cands, err := src.Lookup(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestPerplexityRetriesRateLimits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[],"citations":["https://example.com/a"]}`))
	}))
	defer srv.Close()

	src, err := NewPerplexitySource(PerplexityConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	src.poster.sleep = noSleep
	cands, err := src.Lookup(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Empty(t, cands[0].Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPerplexityRequiresKey(t *testing.T) {
	_, err := NewPerplexitySource(PerplexityConfig{})
	assert.ErrorIs(t, err, errMissingAPIKey)
}
