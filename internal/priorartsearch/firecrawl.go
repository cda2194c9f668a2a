package priorartsearch

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	FirecrawlBaseURL    = "https://api.firecrawl.dev"
	firecrawlSearchPath = "/v1/search"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

type FirecrawlConfig struct {
	APIKey     string
	BaseURL    string
	Limit      int
	HTTPClient *http.Client
}

// FirecrawlSource searches through Firecrawl and reduces each scraped page to
// plain text.
type FirecrawlSource struct {
	cfg    FirecrawlConfig
	poster jsonPoster
}

func NewFirecrawlSource(cfg FirecrawlConfig) (*FirecrawlSource, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firecrawl: %w", errMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = FirecrawlBaseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultNumResults
	}
	return &FirecrawlSource{cfg: cfg, poster: newJSONPoster(cfg.HTTPClient)}, nil
}

func (s *FirecrawlSource) Name() string { return "firecrawl" }

type firecrawlSearchRequest struct {
	Query         string                 `json:"query"`
	Limit         int                    `json:"limit"`
	ScrapeOptions firecrawlScrapeOptions `json:"scrapeOptions"`
}

type firecrawlScrapeOptions struct {
	Formats []string `json:"formats"`
}

type firecrawlSearchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		HTML        string `json:"html"`
		Markdown    string `json:"markdown"`
		Metadata    struct {
			PublishedTime string `json:"publishedTime"`
		} `json:"metadata"`
	} `json:"data"`
}

func (s *FirecrawlSource) Lookup(ctx context.Context, query string) ([]RawCandidate, error) {
	var resp firecrawlSearchResponse
	err := s.poster.post(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+firecrawlSearchPath,
		map[string]string{"Authorization": "Bearer " + s.cfg.APIKey},
		firecrawlSearchRequest{Query: query, Limit: s.cfg.Limit, ScrapeOptions: firecrawlScrapeOptions{Formats: []string{"html", "markdown"}}},
		&resp)
	if err != nil {
		return nil, fmt.Errorf("firecrawl search: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unsuccessful response"
		}
		return nil, fmt.Errorf("firecrawl search: %s", msg)
	}
	out := make([]RawCandidate, 0, len(resp.Data))
	for _, d := range resp.Data {
		text := htmlToText(d.HTML)
		if text == "" {
			text = strings.TrimSpace(d.Markdown)
		}
		title := strings.TrimSpace(d.Title)
		if title == "" {
			title = htmlTitle(d.HTML)
		}
		out = append(out, RawCandidate{
			Title:         title,
			URL:           d.URL,
			Text:          text,
			Summary:       strings.TrimSpace(d.Description),
			PublishedDate: d.Metadata.PublishedTime,
			PatentNumber:  patentNumberFrom(d.URL),
		})
	}
	return out, nil
}

func htmlToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, footer, header, aside").Remove()
	text := whitespaceRe.ReplaceAllString(doc.Find("body").Text(), " ")
	return strings.TrimSpace(text)
}

func htmlTitle(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	title := doc.Find("title").First().Text()
	if strings.TrimSpace(title) == "" {
		title = doc.Find("h1").First().Text()
	}
	return strings.TrimSpace(title)
}
