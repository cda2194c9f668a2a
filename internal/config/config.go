package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "INVENTAVAULT"

// Config is read from INVENTAVAULT_* environment variables, with an optional
// .env file in the working directory.
type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ExaAPIKey          string `envconfig:"EXA_API_KEY"`
	ExaBaseURL         string `envconfig:"EXA_BASE_URL" default:"https://api.exa.ai"`
	FirecrawlAPIKey    string `envconfig:"FIRECRAWL_API_KEY"`
	FirecrawlBaseURL   string `envconfig:"FIRECRAWL_BASE_URL" default:"https://api.firecrawl.dev"`
	PatentsViewAPIKey  string `envconfig:"PATENTSVIEW_API_KEY"`
	PatentsViewBaseURL string `envconfig:"PATENTSVIEW_BASE_URL" default:"https://search.patentsview.org"`
	PatentsViewRPM     int    `envconfig:"PATENTSVIEW_RATE_PER_MINUTE" default:"45"`
	PerplexityAPIKey   string `envconfig:"PERPLEXITY_API_KEY"`
	PerplexityBaseURL  string `envconfig:"PERPLEXITY_BASE_URL" default:"https://api.perplexity.ai"`
	PerplexityModel    string `envconfig:"PERPLEXITY_MODEL" default:"sonar"`
	CorpusPath         string `envconfig:"CORPUS_PATH"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	PlannerModel    string `envconfig:"PLANNER_MODEL" default:"claude-sonnet-4-5"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"24h"`

	LookupTimeout     time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"30s"`
	LookupConcurrency int           `envconfig:"LOOKUP_CONCURRENCY" default:"8"`
	PerQueryLimit     int           `envconfig:"PER_QUERY_LIMIT" default:"2"`
	MaxResults        int           `envconfig:"MAX_RESULTS" default:"10"`

	FeeCurrency  string `envconfig:"FEE_CURRENCY" default:"ETH"`
	SigningKey   string `envconfig:"SIGNING_KEY"`
	LedgerPath   string `envconfig:"LEDGER_PATH" default:"inventavault-ledger.db"`
	ChromePath   string `envconfig:"CHROME_PATH"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
}

func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment without touching .env files.
func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var problems []string
	if c.LookupTimeout <= 0 {
		problems = append(problems, "LOOKUP_TIMEOUT must be positive")
	}
	if c.LookupConcurrency <= 0 {
		problems = append(problems, "LOOKUP_CONCURRENCY must be positive")
	}
	if c.PerQueryLimit <= 0 {
		problems = append(problems, "PER_QUERY_LIMIT must be positive")
	}
	if c.MaxResults <= 0 {
		problems = append(problems, "MAX_RESULTS must be positive")
	}
	switch strings.ToUpper(c.FeeCurrency) {
	case "ETH", "USDC":
	default:
		problems = append(problems, "FEE_CURRENCY must be ETH or USDC")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// SourcesConfigured reports the lookups the environment enables, in a stable order.
func (c Config) SourcesConfigured() []string {
	var out []string
	if strings.TrimSpace(c.ExaAPIKey) != "" {
		out = append(out, "exa")
	}
	if strings.TrimSpace(c.FirecrawlAPIKey) != "" {
		out = append(out, "firecrawl")
	}
	if strings.TrimSpace(c.PatentsViewAPIKey) != "" {
		out = append(out, "patentsview")
	}
	if strings.TrimSpace(c.PerplexityAPIKey) != "" {
		out = append(out, "perplexity")
	}
	if strings.TrimSpace(c.CorpusPath) != "" {
		out = append(out, "corpus")
	}
	return out
}
