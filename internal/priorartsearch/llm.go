package priorartsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/logging"
)

const (
	DefaultPlannerModel = "claude-sonnet-4-5"

	plannerSystemPrompt = "You are a patent search strategist helping an independent inventor check an idea for prior art. You write concise web search queries and do not invent facts. Return strict JSON only."
	maxLLMAttempts      = 3
)

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

type llmFailureClass int

const (
	failureNone llmFailureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
}

func NewAnthropicCaller(apiKey, model string) (*AnthropicCaller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultPlannerModel
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicCaller{messages: &c.Messages, model: model}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   1024,
		System:      []anthropic.TextBlockParam{{Text: plannerSystemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type AttemptStats struct {
	Attempts       int
	ContentRetries int
}

// StageExecutor asks the model for JSON and feeds parse or validation
// failures back into the next attempt.
type StageExecutor struct {
	caller LLMCaller
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewStageExecutor(caller LLMCaller, logger *zap.Logger) *StageExecutor {
	return &StageExecutor{caller: caller, logger: logging.OrNop(logger).Named("llm"), sleep: sleepCtx}
}

func (e *StageExecutor) ModelName() string {
	if e == nil || e.caller == nil {
		return DefaultPlannerModel
	}
	return e.caller.ModelName()
}

func (e *StageExecutor) Run(ctx context.Context, stageName, prompt string, out any, validate func() error) (AttemptStats, error) {
	stats := AttemptStats{}
	feedback := ""
	for attempt := 1; attempt <= maxLLMAttempts; attempt++ {
		stats.Attempts = attempt
		fullPrompt := prompt
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		attemptStart := time.Now()
		log := e.logger.With(zap.String("stage", stageName), zap.Int("attempt", attempt))
		log.Debug("llm_attempt_start")
		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			log.Warn("llm_attempt_transport_error", zap.Int("class", int(class)), zap.Duration("elapsed", time.Since(attemptStart)), zap.Error(err))
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < maxLLMAttempts {
					if serr := e.sleep(ctx, backoffDelay(attempt)); serr != nil {
						return stats, serr
					}
					continue
				}
			}
			return stats, fmt.Errorf("%s transport failure: %w", stageName, err)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			log.Warn("llm_attempt_empty", zap.Duration("elapsed", time.Since(attemptStart)))
			if attempt < maxLLMAttempts {
				stats.ContentRetries++
				feedback = "Your previous response was empty. Return valid JSON only."
				continue
			}
			return stats, fmt.Errorf("%s failed: empty response", stageName)
		}

		clean := stripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			log.Warn("llm_attempt_json_error", zap.Duration("elapsed", time.Since(attemptStart)), zap.Error(err))
			if attempt < maxLLMAttempts {
				stats.ContentRetries++
				feedback = "Your previous response was not valid JSON. Return valid JSON only."
				continue
			}
			return stats, fmt.Errorf("%s failed json parse: %w", stageName, err)
		}
		if err := validate(); err != nil {
			log.Warn("llm_attempt_validation_error", zap.Duration("elapsed", time.Since(attemptStart)), zap.Error(err))
			if attempt < maxLLMAttempts {
				stats.ContentRetries++
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix and return valid JSON only.", err)
				continue
			}
			return stats, fmt.Errorf("%s failed validation: %w", stageName, err)
		}
		log.Debug("llm_attempt_success", zap.Duration("elapsed", time.Since(attemptStart)), zap.Int("response_chars", len(clean)))
		return stats, nil
	}
	return stats, fmt.Errorf("%s failed after retries", stageName)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) llmFailureClass {
	msg := strings.ToLower(err.Error())
	if isTimeoutError(err) {
		return failureTimeout
	}
	m := statusCodeRe.FindStringSubmatch(msg)
	if len(m) == 2 {
		switch {
		case strings.HasPrefix(m[1], "429"):
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	switch {
	case strings.Contains(msg, "rate limit"):
		return failureRateLimit
	case strings.Contains(msg, "server error"):
		return failureServer
	default:
		return failureServer
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
