package priorartsearch

import (
	"math"
	"strings"

	"github.com/joelkehle/inventavault/internal/patent"
)

// Weights are the additive terms of a relevance score.
type Weights struct {
	Keywords       float64
	TechnicalField float64
	Problem        float64
	Solution       float64
	PatentLanguage float64
	// MinKeywordLen is exclusive: words must be longer than this.
	MinKeywordLen int
}

var DefaultWeights = Weights{
	Keywords:       60,
	TechnicalField: 20,
	Problem:        10,
	Solution:       10,
	PatentLanguage: 5,
	MinKeywordLen:  3,
}

var patentLanguage = []string{"patent", "invention", "claim"}

type Scorer struct {
	Weights Weights
}

func NewScorer() Scorer {
	return Scorer{Weights: DefaultWeights}
}

// Score rates how strongly text overlaps idea, 0 to 100. Keyword matching is
// substring based and keeps duplicate words, so repeated terms weigh more.
func (s Scorer) Score(text string, idea patent.Idea) int {
	w := s.Weights
	content := strings.ToLower(text)

	keywords := s.keywords(idea.Title, idea.Description, idea.TechnicalField, idea.ProblemSolved, idea.Solution)
	score := w.Keywords * matchFraction(content, keywords)

	if field := strings.ToLower(strings.TrimSpace(idea.TechnicalField)); field != "" && strings.Contains(content, field) {
		score += w.TechnicalField
	}

	score += w.Problem * matchFraction(content, s.keywords(idea.ProblemSolved))
	score += w.Solution * matchFraction(content, s.keywords(idea.Solution))

	for _, term := range patentLanguage {
		if strings.Contains(content, term) {
			score += w.PatentLanguage
			break
		}
	}
	return clampScore(int(math.Round(score)))
}

// ScoreCandidate scores the text a raw candidate exposes: its body (summary,
// then title, when the body is empty) followed by its title.
func (s Scorer) ScoreCandidate(c RawCandidate, idea patent.Idea) int {
	return s.Score(candidateText(c), idea)
}

func candidateText(c RawCandidate) string {
	body := c.Text
	if strings.TrimSpace(body) == "" {
		body = c.Summary
	}
	if strings.TrimSpace(body) == "" {
		body = c.Title
	}
	return body + " " + c.Title
}

func (s Scorer) keywords(parts ...string) []string {
	joined := strings.ToLower(strings.Join(parts, " "))
	var out []string
	for _, word := range strings.Fields(joined) {
		if len(word) > s.Weights.MinKeywordLen {
			out = append(out, word)
		}
	}
	return out
}

func matchFraction(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
