package priorartsearch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/inventavault/internal/logging"
	"github.com/joelkehle/inventavault/internal/metrics"
	"github.com/joelkehle/inventavault/internal/patent"
)

const (
	DefaultLookupTimeout = 30 * time.Second
	DefaultPerQueryLimit = 2
	DefaultConcurrency   = 8
)

var tracer = otel.Tracer("github.com/joelkehle/inventavault/internal/priorartsearch")

// Research is everything the research stage learned about one idea.
type Research struct {
	Set       patent.ResultSet `json:"set"`
	Warnings  []Warning        `json:"warnings,omitempty"`
	Queries   []string         `json:"queries"`
	Attempted int              `json:"attempted"`
	Failed    int              `json:"failed"`
}

// AllFailed reports whether lookups were attempted and none succeeded.
func (r Research) AllFailed() bool {
	return r.Attempted > 0 && r.Failed == r.Attempted
}

type Aggregator struct {
	Planner       QueryPlanner
	Scorer        Scorer
	Timeout       time.Duration
	Concurrency   int
	PerQueryLimit int
	MaxResults    int
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

func NewAggregator(logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		Planner:       KeywordPlanner{},
		Scorer:        NewScorer(),
		Timeout:       DefaultLookupTimeout,
		Concurrency:   DefaultConcurrency,
		PerQueryLimit: DefaultPerQueryLimit,
		MaxResults:    patent.DefaultMaxResults,
		Logger:        logger,
		Metrics:       m,
	}
}

// Aggregate runs every query against every lookup and ranks what came back.
// Lookup failures become warnings; it never returns an error.
func (a *Aggregator) Aggregate(ctx context.Context, idea patent.Idea, lookups []SourceLookup) Research {
	ctx, span := tracer.Start(ctx, "priorartsearch.Aggregate")
	defer span.End()
	logger := logging.OrNop(a.Logger).Named("aggregator")

	planner := a.Planner
	if planner == nil {
		planner = KeywordPlanner{}
	}
	out := Research{Set: patent.ResultSet{}}
	if len(lookups) == 0 {
		logger.Info("research_no_lookups")
		return out
	}
	out.Queries = planner.Plan(ctx, idea)

	type call struct {
		lookup SourceLookup
		query  string
	}
	calls := make([]call, 0, len(lookups)*len(out.Queries))
	for _, l := range lookups {
		for _, q := range out.Queries {
			calls = append(calls, call{lookup: l, query: q})
		}
	}
	results := make([]LookupResult, len(calls))

	concurrency := a.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range calls {
		g.Go(func() error {
			results[i] = a.lookupOne(gctx, c.lookup, c.query)
			return nil
		})
	}
	_ = g.Wait()

	limit := a.PerQueryLimit
	if limit <= 0 {
		limit = DefaultPerQueryLimit
	}
	var refs []patent.Reference
	for _, res := range results {
		out.Attempted++
		if res.Failed() {
			out.Failed++
			w := Warning{Source: res.Source, Query: res.Query, Message: res.Err.Error()}
			out.Warnings = append(out.Warnings, w)
			logger.Warn("lookup_failed", zap.String("source", res.Source), zap.String("query", res.Query), zap.Error(res.Err))
			continue
		}
		kept := 0
		for _, cand := range res.Candidates {
			if kept == limit {
				break
			}
			if !cand.usable() {
				continue
			}
			kept++
			refs = append(refs, toReference(cand, res.Source, a.Scorer.ScoreCandidate(cand, idea)))
		}
	}
	out.Set = patent.Rank(refs, a.MaxResults)
	if out.Set == nil {
		out.Set = patent.ResultSet{}
	}
	a.Metrics.ObserveResults(len(out.Set))

	span.SetAttributes(
		attribute.Int("lookups.attempted", out.Attempted),
		attribute.Int("lookups.failed", out.Failed),
		attribute.Int("results", len(out.Set)),
	)
	if out.AllFailed() {
		span.SetStatus(codes.Error, "all lookups failed")
	}
	logger.Info("research_complete",
		zap.Int("queries", len(out.Queries)),
		zap.Int("attempted", out.Attempted),
		zap.Int("failed", out.Failed),
		zap.Int("results", len(out.Set)))
	return out
}

type lookupReply struct {
	candidates []RawCandidate
	err        error
}

// lookupOne never blocks past its timeout, even when the source ignores ctx.
func (a *Aggregator) lookupOne(ctx context.Context, l SourceLookup, query string) LookupResult {
	name := l.Name()
	res := LookupResult{Source: name, Query: query}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "priorartsearch.Lookup", trace.WithAttributes(attribute.String("source", name), attribute.String("query", query)))
	defer span.End()

	start := time.Now()
	replies := make(chan lookupReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- lookupReply{err: fmt.Errorf("lookup panicked: %v", r)}
			}
		}()
		cands, err := l.Lookup(ctx, query)
		replies <- lookupReply{candidates: cands, err: err}
	}()

	select {
	case reply := <-replies:
		res.Candidates, res.Err = reply.candidates, reply.err
	case <-ctx.Done():
		res.Err = fmt.Errorf("lookup timed out after %s: %w", timeout, ctx.Err())
	}
	if res.Err != nil {
		res.Candidates = nil
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		a.Metrics.ObserveLookup(name, "error", time.Since(start))
		return res
	}
	a.Metrics.ObserveLookup(name, "ok", time.Since(start))
	return res
}
