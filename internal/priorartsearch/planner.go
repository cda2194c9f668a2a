package priorartsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/logging"
	"github.com/joelkehle/inventavault/internal/patent"
)

// QueryPlanner turns an idea into the search strings sent to every source.
type QueryPlanner interface {
	Plan(ctx context.Context, idea patent.Idea) []string
}

// KeywordPlanner renders a fixed set of query templates from the idea fields.
type KeywordPlanner struct{}

func (KeywordPlanner) Plan(_ context.Context, idea patent.Idea) []string {
	title := strings.TrimSpace(idea.Title)
	field := strings.TrimSpace(idea.TechnicalField)
	problem := strings.TrimSpace(idea.ProblemSolved)
	solution := strings.TrimSpace(idea.Solution)
	return dedupeQueries([]string{
		fmt.Sprintf("%s patent prior art", title),
		fmt.Sprintf("%s %s patent", field, problem),
		`"` + solution + `" patent application`,
		fmt.Sprintf("%s invention similar to %s", field, title),
		fmt.Sprintf("patent database %s %s", field, problem),
	})
}

const (
	maxPlannedQueries = 6
	maxQueryChars     = 200
)

// LLMPlanner asks a model for queries and falls back to Fallback when the
// model is unavailable or keeps returning unusable output.
type LLMPlanner struct {
	Executor *StageExecutor
	Fallback QueryPlanner
	Logger   *zap.Logger
}

type plannedQueries struct {
	Queries []string `json:"queries"`
}

func (p LLMPlanner) Plan(ctx context.Context, idea patent.Idea) []string {
	fallback := p.Fallback
	if fallback == nil {
		fallback = KeywordPlanner{}
	}
	if p.Executor == nil {
		return fallback.Plan(ctx, idea)
	}
	logger := logging.OrNop(p.Logger)

	var out plannedQueries
	stats, err := p.Executor.Run(ctx, "query_plan", plannerPrompt(idea), &out, func() error {
		return validateQueries(out.Queries)
	})
	if err != nil {
		logger.Warn("query_plan_fallback", zap.String("model", p.Executor.ModelName()), zap.Int("attempts", stats.Attempts), zap.Error(err))
		return fallback.Plan(ctx, idea)
	}
	queries := dedupeQueries(out.Queries)
	if len(queries) > maxPlannedQueries {
		queries = queries[:maxPlannedQueries]
	}
	logger.Debug("query_plan_ready", zap.Int("queries", len(queries)), zap.Int("attempts", stats.Attempts))
	return queries
}

func plannerPrompt(idea patent.Idea) string {
	var b strings.Builder
	b.WriteString("Write 3 to 6 web search queries that would surface existing patents, patent applications or publications anticipating the invention below.\n")
	b.WriteString("Mix broad field queries with narrow queries on the specific mechanism. Each query must be under 200 characters.\n")
	b.WriteString(`Return JSON of the form {"queries": ["..."]}.` + "\n\n")
	fmt.Fprintf(&b, "Title: %s\n", idea.Title)
	fmt.Fprintf(&b, "Technical field: %s\n", idea.TechnicalField)
	fmt.Fprintf(&b, "Problem solved: %s\n", idea.ProblemSolved)
	fmt.Fprintf(&b, "Solution: %s\n", idea.Solution)
	fmt.Fprintf(&b, "Description: %s\n", idea.Description)
	return b.String()
}

func validateQueries(queries []string) error {
	usable := 0
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if len(q) > maxQueryChars {
			return fmt.Errorf("query longer than %d characters", maxQueryChars)
		}
		usable++
	}
	if usable < 3 {
		return errors.New("at least 3 non-empty queries are required")
	}
	return nil
}

func dedupeQueries(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, q := range in {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" || q == `""` {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}
