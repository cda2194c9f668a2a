package priorartsearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	PatentsViewBaseURL           = "https://search.patentsview.org"
	patentsViewPatentPath        = "/api/v1/patent/"
	DefaultPatentsViewLimit      = 5
	DefaultPatentsViewRatePerMin = 45
)

type PatentsViewConfig struct {
	APIKey             string
	BaseURL            string
	MaxPatents         int
	RateLimitPerMinute int
	HTTPClient         *http.Client
}

// PatentsViewSource searches granted US patents by title and abstract text.
// Calls share one limiter so concurrent queries stay under the API quota.
type PatentsViewSource struct {
	cfg     PatentsViewConfig
	poster  jsonPoster
	limiter *rate.Limiter
}

func NewPatentsViewSource(cfg PatentsViewConfig) (*PatentsViewSource, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("patentsview: %w", errMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = PatentsViewBaseURL
	}
	if cfg.MaxPatents <= 0 {
		cfg.MaxPatents = DefaultPatentsViewLimit
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = DefaultPatentsViewRatePerMin
	}
	every := time.Minute / time.Duration(cfg.RateLimitPerMinute)
	return &PatentsViewSource{
		cfg:     cfg,
		poster:  newJSONPoster(cfg.HTTPClient),
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}, nil
}

func (s *PatentsViewSource) Name() string { return "patentsview" }

type patentsViewResponse struct {
	Error     bool             `json:"error"`
	Count     int              `json:"count"`
	TotalHits int              `json:"total_hits"`
	Patents   []map[string]any `json:"patents"`
}

func (s *PatentsViewSource) Lookup(ctx context.Context, query string) ([]RawCandidate, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var resp patentsViewResponse
	err := s.poster.post(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+patentsViewPatentPath,
		map[string]string{"X-Api-Key": s.cfg.APIKey},
		patentsViewQuery(strings.Join(tokens, " "), s.cfg.MaxPatents),
		&resp)
	if err != nil {
		return nil, fmt.Errorf("patentsview search: %w", err)
	}
	if resp.Error {
		return nil, errors.New("patentsview search: error flag set")
	}

	out := make([]RawCandidate, 0, len(resp.Patents))
	for _, raw := range resp.Patents {
		c, ok := patentCandidate(raw)
		if !ok {
			continue
		}
		out = append(out, c)
		if len(out) == s.cfg.MaxPatents {
			break
		}
	}
	return out, nil
}

// patentsViewQuery matches any token in the title or abstract, newest grants first.
func patentsViewQuery(tokens string, size int) map[string]any {
	return map[string]any{
		"q": map[string]any{"_or": []any{
			map[string]any{"_text_any": map[string]any{"patent_title": tokens}},
			map[string]any{"_text_any": map[string]any{"patent_abstract": tokens}},
		}},
		"f": []string{"patent_id", "patent_title", "patent_abstract", "patent_date"},
		"s": []map[string]string{{"patent_date": "desc"}, {"patent_id": "asc"}},
		"o": map[string]int{"size": size},
	}
}

func patentCandidate(raw map[string]any) (RawCandidate, bool) {
	id := strings.TrimSpace(str(raw["patent_id"]))
	title := strings.TrimSpace(str(raw["patent_title"]))
	if id == "" || title == "" {
		return RawCandidate{}, false
	}
	number := "US" + id
	return RawCandidate{
		Title:         title,
		URL:           "https://patents.google.com/patent/" + number,
		Text:          strings.TrimSpace(str(raw["patent_abstract"])),
		PublishedDate: strings.TrimSpace(str(raw["patent_date"])),
		PatentNumber:  number,
	}, true
}

// queryTokens drops short words and duplicates, keeping at most 30 tokens.
func queryTokens(query string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range strings.Fields(strings.NewReplacer("-", " ", ",", " ").Replace(query)) {
		tok = strings.ToLower(strings.Trim(tok, `"'.:;()`))
		if len(tok) < 3 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == 30 {
			break
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
