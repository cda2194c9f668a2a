package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/billing"
	"github.com/joelkehle/inventavault/internal/config"
	"github.com/joelkehle/inventavault/internal/document"
	"github.com/joelkehle/inventavault/internal/ledger"
	"github.com/joelkehle/inventavault/internal/logging"
	"github.com/joelkehle/inventavault/internal/metrics"
	"github.com/joelkehle/inventavault/internal/pipeline"
	"github.com/joelkehle/inventavault/internal/priorartsearch"
	"github.com/joelkehle/inventavault/internal/signing"
)

const redisPingTimeout = 3 * time.Second

// App holds the wired collaborators shared by every command.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Lookups  []priorartsearch.SourceLookup
	Machine  *pipeline.Machine
	Ledger   *ledger.SQLiteLedger
	PDF      *document.PDFRenderer

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	lookups, err := a.lookups(ctx)
	if err != nil {
		return err
	}
	a.Lookups = lookups

	agg := priorartsearch.NewAggregator(a.Logger, a.Metrics)
	agg.Timeout = cfg.LookupTimeout
	agg.Concurrency = cfg.LookupConcurrency
	agg.PerQueryLimit = cfg.PerQueryLimit
	agg.MaxResults = cfg.MaxResults
	if cfg.AnthropicAPIKey != "" {
		caller, err := priorartsearch.NewAnthropicCaller(cfg.AnthropicAPIKey, cfg.PlannerModel)
		if err != nil {
			return err
		}
		agg.Planner = priorartsearch.LLMPlanner{
			Executor: priorartsearch.NewStageExecutor(caller, a.Logger),
			Fallback: priorartsearch.KeywordPlanner{},
			Logger:   a.Logger,
		}
	}

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	a.Ledger = l
	a.closers = append(a.closers, l.Close)

	var signer *signing.HMACSigner
	if cfg.SigningKey != "" {
		signer, err = signing.NewHMACSigner(cfg.SigningKey)
	} else {
		a.Logger.Warn("signing_key_missing", zap.String("detail", "using an ephemeral key; signatures will not verify after restart"))
		signer, err = signing.NewEphemeralSigner()
	}
	if err != nil {
		return err
	}

	fee, err := billing.DefaultFees.Fee(cfg.FeeCurrency)
	if err != nil {
		return err
	}

	a.Machine, err = pipeline.NewMachine(pipeline.Config{
		Researcher: agg,
		Lookups:    lookups,
		Payments:   billing.NewWaivedProcessor(a.Logger),
		Signer:     signer,
		Ledger:     l,
		Fee:        fee,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	})
	if err != nil {
		return err
	}
	a.PDF = document.NewPDFRenderer(cfg.ChromePath)

	names := make([]string, 0, len(lookups))
	for _, lk := range lookups {
		names = append(names, lk.Name())
	}
	a.Logger.Info("app_ready",
		zap.Strings("configured", cfg.SourcesConfigured()),
		zap.Strings("sources", names),
		zap.String("ledger", cfg.LedgerPath),
		zap.String("fee", fee.Amount+" "+fee.Currency),
		zap.Bool("llm_planner", cfg.AnthropicAPIKey != ""))
	return nil
}

// lookups builds the configured sources. Remote sources go through the Redis
// cache when one is reachable.
func (a *App) lookups(ctx context.Context) ([]priorartsearch.SourceLookup, error) {
	cfg := a.Config
	var remote []priorartsearch.SourceLookup
	if cfg.ExaAPIKey != "" {
		src, err := priorartsearch.NewExaSource(priorartsearch.ExaConfig{APIKey: cfg.ExaAPIKey, BaseURL: cfg.ExaBaseURL})
		if err != nil {
			return nil, err
		}
		remote = append(remote, src)
	}
	if cfg.FirecrawlAPIKey != "" {
		src, err := priorartsearch.NewFirecrawlSource(priorartsearch.FirecrawlConfig{APIKey: cfg.FirecrawlAPIKey, BaseURL: cfg.FirecrawlBaseURL})
		if err != nil {
			return nil, err
		}
		remote = append(remote, src)
	}
	if cfg.PatentsViewAPIKey != "" {
		src, err := priorartsearch.NewPatentsViewSource(priorartsearch.PatentsViewConfig{
			APIKey:             cfg.PatentsViewAPIKey,
			BaseURL:            cfg.PatentsViewBaseURL,
			RateLimitPerMinute: cfg.PatentsViewRPM,
		})
		if err != nil {
			return nil, err
		}
		remote = append(remote, src)
	}
	if cfg.PerplexityAPIKey != "" {
		src, err := priorartsearch.NewPerplexitySource(priorartsearch.PerplexityConfig{
			APIKey:  cfg.PerplexityAPIKey,
			BaseURL: cfg.PerplexityBaseURL,
			Model:   cfg.PerplexityModel,
		})
		if err != nil {
			return nil, err
		}
		remote = append(remote, src)
	}

	if cache := a.cache(ctx); cache != nil {
		for i, src := range remote {
			remote[i] = priorartsearch.NewCachedSource(src, cache, cfg.CacheTTL, a.Logger)
		}
	}

	out := remote
	if cfg.CorpusPath != "" {
		corpus, err := priorartsearch.OpenCorpus(cfg.CorpusPath)
		if err != nil {
			return nil, fmt.Errorf("open corpus: %w", err)
		}
		a.closers = append(a.closers, corpus.Close)
		out = append(out, corpus)
	}
	if len(out) == 0 {
		a.Logger.Warn("no_sources_configured", zap.String("detail", "research will complete with an empty result set"))
	}
	return out, nil
}

func (a *App) cache(ctx context.Context) priorartsearch.Cache {
	if a.Config.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.Warn("redis_unavailable", zap.String("addr", a.Config.RedisAddr), zap.Error(err))
		client.Close()
		return nil
	}
	a.closers = append(a.closers, client.Close)
	return priorartsearch.NewRedisCache(client)
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
