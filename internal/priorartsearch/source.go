package priorartsearch

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joelkehle/inventavault/internal/patent"
)

// SourceLookup is one external prior-art provider.
type SourceLookup interface {
	Name() string
	Lookup(ctx context.Context, query string) ([]RawCandidate, error)
}

type RawCandidate struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Text          string `json:"text,omitempty"`
	Summary       string `json:"summary,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
	PatentNumber  string `json:"patent_number,omitempty"`
}

func (c RawCandidate) usable() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Title) != ""
}

// LookupResult is the outcome of one (source, query) call. Exactly one of
// Candidates or Err is meaningful.
type LookupResult struct {
	Source     string
	Query      string
	Candidates []RawCandidate
	Err        error
}

func (r LookupResult) Failed() bool { return r.Err != nil }

// Warning records a lookup that did not contribute candidates.
type Warning struct {
	Source  string `json:"source"`
	Query   string `json:"query"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return w.Source + ": " + w.Message
}

const summaryChars = 300

func toReference(c RawCandidate, source string, score int) patent.Reference {
	summary := strings.TrimSpace(c.Summary)
	if summary == "" {
		summary = truncateRunes(strings.TrimSpace(c.Text), summaryChars)
	}
	return patent.Reference{
		Title:           strings.TrimSpace(c.Title),
		URL:             strings.TrimSpace(c.URL),
		Summary:         summary,
		RelevanceScore:  score,
		PublicationDate: strings.TrimSpace(c.PublishedDate),
		PatentNumber:    strings.TrimSpace(c.PatentNumber),
		Similarity:      patent.SimilarityFor(score),
		LegalRisk:       patent.LegalRiskFor(score),
		Source:          source,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

var patentURLRe = regexp.MustCompile(`/patent/([A-Z]{2}[0-9]{4,}[A-Z]?[0-9]?)`)

// patentNumberFrom extracts a publication number from patent office style URLs
// such as https://patents.google.com/patent/US9876543B2/en.
func patentNumberFrom(url string) string {
	m := patentURLRe.FindStringSubmatch(url)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}
