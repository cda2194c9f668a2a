package priorartsearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	ExaBaseURL        = "https://api.exa.ai"
	exaSearchPath     = "/search"
	DefaultNumResults = 5
)

type ExaConfig struct {
	APIKey     string
	BaseURL    string
	NumResults int
	HTTPClient *http.Client
}

// ExaSource searches the open web through Exa's neural search API.
type ExaSource struct {
	cfg    ExaConfig
	poster jsonPoster
}

func NewExaSource(cfg ExaConfig) (*ExaSource, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("exa: %w", errMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ExaBaseURL
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = DefaultNumResults
	}
	return &ExaSource{cfg: cfg, poster: newJSONPoster(cfg.HTTPClient)}, nil
}

func (s *ExaSource) Name() string { return "exa" }

type exaSearchRequest struct {
	Query      string      `json:"query"`
	NumResults int         `json:"numResults"`
	Contents   exaContents `json:"contents"`
}

type exaContents struct {
	Text bool `json:"text"`
}

type exaSearchResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
		Summary       string `json:"summary"`
	} `json:"results"`
}

func (s *ExaSource) Lookup(ctx context.Context, query string) ([]RawCandidate, error) {
	var resp exaSearchResponse
	err := s.poster.post(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+exaSearchPath,
		map[string]string{"x-api-key": s.cfg.APIKey},
		exaSearchRequest{Query: query, NumResults: s.cfg.NumResults, Contents: exaContents{Text: true}},
		&resp)
	if err != nil {
		return nil, fmt.Errorf("exa search: %w", err)
	}
	out := make([]RawCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, RawCandidate{
			Title:         r.Title,
			URL:           r.URL,
			Text:          r.Text,
			Summary:       r.Summary,
			PublishedDate: r.PublishedDate,
			PatentNumber:  patentNumberFrom(r.URL),
		})
	}
	return out, nil
}
