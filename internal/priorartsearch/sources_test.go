package priorartsearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestExaLookupMapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "exa-key", r.Header.Get("x-api-key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "smart valve patent", body["query"])
		assert.Equal(t, float64(3), body["numResults"])
		assert.Equal(t, map[string]any{"text": true}, body["contents"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Leak detecting valve","url":"https://patents.google.com/patent/US9876543B2/en","publishedDate":"2019-05-01","text":"A valve with a pressure sensor."},
			{"title":"Blog post","url":"https://blog.example.com/valves","summary":"valves explained"}
		]}`))
	}))
	defer srv.Close()

	src, err := NewExaSource(ExaConfig{APIKey: "exa-key", BaseURL: srv.URL, NumResults: 3})
	require.NoError(t, err)
	cands, err := src.Lookup(context.Background(), "smart valve patent")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "Leak detecting valve", cands[0].Title)
	assert.Equal(t, "US9876543B2", cands[0].PatentNumber)
	assert.Equal(t, "2019-05-01", cands[0].PublishedDate)
	assert.Equal(t, "valves explained", cands[1].Summary)
	assert.Empty(t, cands[1].PatentNumber)
}

func TestExaRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	src, err := NewExaSource(ExaConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	src.poster.sleep = noSleep
	cands, err := src.Lookup(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExaDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	src, err := NewExaSource(ExaConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	src.poster.sleep = noSleep
	_, err = src.Lookup(context.Background(), "q")
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExaHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	src, err := NewExaSource(ExaConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	var waited time.Duration
	src.poster.sleep = func(_ context.Context, d time.Duration) error {
		waited = d
		return nil
	}
	_, err = src.Lookup(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, waited)
}

func TestNewSourcesRequireAPIKey(t *testing.T) {
	_, err := NewExaSource(ExaConfig{})
	assert.ErrorIs(t, err, errMissingAPIKey)
	_, err = NewFirecrawlSource(FirecrawlConfig{APIKey: "  "})
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestFirecrawlLookupReducesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		resp := map[string]any{
			"success": true,
			"data": []map[string]any{
				{
					"url":         "https://example.com/a",
					"description": "short description",
					"html":        "<html><head><title>Valve Monitor</title><script>var x=1;</script></head><body><nav>menu</nav><p>Pressure   sensor\narray for leaks</p><footer>copyright</footer></body></html>",
				},
				{
					"title":    "Markdown only",
					"url":      "https://example.com/b",
					"markdown": "# Heading\nbody text",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	src, err := NewFirecrawlSource(FirecrawlConfig{APIKey: "fc-key", BaseURL: srv.URL})
	require.NoError(t, err)
	cands, err := src.Lookup(context.Background(), "valve")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "Valve Monitor", cands[0].Title)
	assert.Equal(t, "Pressure sensor array for leaks", cands[0].Text)
	assert.Equal(t, "short description", cands[0].Summary)
	assert.Equal(t, "# Heading\nbody text", cands[1].Text)
}

func TestFirecrawlUnsuccessfulResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"credits exhausted"}`))
	}))
	defer srv.Close()

	src, err := NewFirecrawlSource(FirecrawlConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = src.Lookup(context.Background(), "valve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credits exhausted")
}

func TestCorpusImportAndLookup(t *testing.T) {
	corpus, err := OpenCorpus(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { corpus.Close() })
	ctx := context.Background()

	n, err := corpus.Import(ctx, []RawCandidate{
		{URL: "https://c/1", Title: "Valve with pressure sensor", Summary: "leak detection in pipes"},
		{URL: "https://c/2", Title: "Garden hose", Summary: "watering plants"},
		{URL: "https://c/3", Title: "Pressure cooker", Text: "kitchen appliance"},
		{URL: "", Title: "skipped"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = corpus.Import(ctx, []RawCandidate{{URL: "https://c/2", Title: "Garden hose v2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	count, err := corpus.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	cands, err := corpus.Lookup(ctx, `"pressure sensor" leak patent application`)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "https://c/1", cands[0].URL)
	assert.Equal(t, "https://c/3", cands[1].URL)

	cands, err = corpus.Lookup(ctx, "patent prior art")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestCorpusLookupFoldsNonASCIICase(t *testing.T) {
	corpus, err := OpenCorpus(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { corpus.Close() })
	ctx := context.Background()

	_, err = corpus.Import(ctx, []RawCandidate{
		{URL: "https://c/oel", Title: "ÖLVENTIL mit Drucksensor", Summary: "Leckerkennung"},
		{URL: "https://c/other", Title: "Wasserhahn"},
	})
	require.NoError(t, err)

	cands, err := corpus.Lookup(ctx, "Ölventil")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "https://c/oel", cands[0].URL)
	assert.Equal(t, "ÖLVENTIL mit Drucksensor", cands[0].Title)
}

type fakeCache struct {
	data   map[string][]byte
	getErr error
	sets   int
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	c.sets++
	return nil
}

func TestCachedSourceServesRepeatQueries(t *testing.T) {
	inner := &fakeLookup{name: "exa", all: []RawCandidate{{URL: "https://a", Title: "A"}}}
	cache := &fakeCache{}
	src := NewCachedSource(inner, cache, time.Hour, nil)

	for i := 0; i < 3; i++ {
		cands, err := src.Lookup(context.Background(), "valve")
		require.NoError(t, err)
		require.Len(t, cands, 1)
	}
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, "exa", src.Name())
	assert.Contains(t, cache.data, cacheKey("exa", "valve"))
}

func TestCachedSourceBypassesBrokenCache(t *testing.T) {
	inner := &fakeLookup{name: "exa", all: []RawCandidate{{URL: "https://a", Title: "A"}}}
	src := NewCachedSource(inner, &fakeCache{getErr: errors.New("connection refused")}, time.Hour, nil)
	cands, err := src.Lookup(context.Background(), "valve")
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestCachedSourceDoesNotCacheFailures(t *testing.T) {
	inner := &fakeLookup{name: "exa", err: errors.New("down")}
	cache := &fakeCache{}
	src := NewCachedSource(inner, cache, time.Hour, nil)
	_, err := src.Lookup(context.Background(), "valve")
	require.Error(t, err)
	assert.Zero(t, cache.sets)
}

func TestPatentNumberFromURL(t *testing.T) {
	assert.Equal(t, "US9876543B2", patentNumberFrom("https://patents.google.com/patent/US9876543B2/en"))
	assert.Equal(t, "EP1234567A1", patentNumberFrom("https://patents.google.com/patent/EP1234567A1"))
	assert.Empty(t, patentNumberFrom("https://example.com/article"))
}
