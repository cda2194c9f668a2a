package priorartsearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	PerplexityBaseURL      = "https://api.perplexity.ai"
	perplexityChatPath     = "/chat/completions"
	DefaultPerplexityModel = "sonar"
	perplexityCitations    = 3

	perplexitySystemPrompt = "You are a patent research expert. Find existing patents, academic papers, technical literature or commercial products that could affect the patentability of the described invention. Cite your sources."
)

type PerplexityConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// PerplexitySource asks an online answer engine about a query and turns the
// cited pages into candidates. Every candidate carries the full answer as its
// text, so citations are scored against what the engine said about them.
type PerplexitySource struct {
	cfg    PerplexityConfig
	poster jsonPoster
}

func NewPerplexitySource(cfg PerplexityConfig) (*PerplexitySource, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("perplexity: %w", errMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = PerplexityBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultPerplexityModel
	}
	return &PerplexitySource{cfg: cfg, poster: newJSONPoster(cfg.HTTPClient)}, nil
}

func (s *PerplexitySource) Name() string { return "perplexity" }

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model       string              `json:"model"`
	Messages    []perplexityMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
	Citations     []string `json:"citations"`
	SearchResults []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Date  string `json:"date"`
	} `json:"search_results"`
}

func (s *PerplexitySource) Lookup(ctx context.Context, query string) ([]RawCandidate, error) {
	req := perplexityRequest{
		Model: s.cfg.Model,
		Messages: []perplexityMessage{
			{Role: "system", Content: perplexitySystemPrompt},
			{Role: "user", Content: "Analyze potential prior art for: " + query},
		},
		Temperature: 0.2,
		MaxTokens:   2000,
	}
	var resp perplexityResponse
	err := s.poster.post(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+perplexityChatPath,
		map[string]string{"Authorization": "Bearer " + s.cfg.APIKey},
		req, &resp)
	if err != nil {
		return nil, fmt.Errorf("perplexity search: %w", err)
	}

	answer := ""
	if len(resp.Choices) > 0 {
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	titles := map[string]string{}
	dates := map[string]string{}
	for _, r := range resp.SearchResults {
		titles[r.URL] = strings.TrimSpace(r.Title)
		dates[r.URL] = strings.TrimSpace(r.Date)
	}

	out := make([]RawCandidate, 0, perplexityCitations)
	for _, citation := range resp.Citations {
		citation = strings.TrimSpace(citation)
		if citation == "" {
			continue
		}
		title := titles[citation]
		if title == "" {
			title = citation
		}
		out = append(out, RawCandidate{
			Title:         title,
			URL:           citation,
			Text:          answer,
			PublishedDate: dates[citation],
			PatentNumber:  patentNumberFrom(citation),
		})
		if len(out) == perplexityCitations {
			break
		}
	}
	return out, nil
}
