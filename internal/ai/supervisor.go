// Package ai wraps the Anthropic API for the content agents. All model
// traffic goes through one Supervisor so retry, circuit breaking,
// concurrency limits, and budget checks apply uniformly.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/storage"
)

// Tiered model strategy: the default model handles drafting, planning,
// and review; the simple model handles intent classification and
// summarization, where the cheap tier is plenty.
const (
	ModelDefault = "claude-sonnet-4-5"
	ModelSimple  = "claude-3-5-haiku-20241022"
)

// DefaultModel returns the reasoning model, honoring CURATOR_MODEL.
func DefaultModel() string {
	if m := os.Getenv("CURATOR_MODEL"); m != "" {
		return m
	}
	return ModelDefault
}

// SimpleTaskModel returns the cheap-tier model, honoring
// CURATOR_SIMPLE_MODEL.
func SimpleTaskModel() string {
	if m := os.Getenv("CURATOR_SIMPLE_MODEL"); m != "" {
		return m
	}
	return ModelSimple
}

// BudgetChecker gates model calls on spend. Implemented by the cost
// package; an interface here avoids a circular import.
type BudgetChecker interface {
	// CanProceed reports whether another call fits the budget, with a
	// human-readable reason when it does not.
	CanProceed(ctx context.Context) (bool, string)
}

// ErrBudgetExceeded is returned when the budget checker refuses a call.
var ErrBudgetExceeded = fmt.Errorf("AI budget exceeded")

// Supervisor is the single gateway to the model API. Task surfaces
// live in sibling files: intent.go, planning.go, drafting.go,
// review.go, assessment.go, summarize.go.
type Supervisor struct {
	client         *anthropic.Client
	store          storage.Storage
	model          string
	simpleModel    string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	budget         BudgetChecker
}

// Config holds supervisor configuration.
type Config struct {
	APIKey      string // falls back to ANTHROPIC_API_KEY
	Model       string
	SimpleModel string
	Store       storage.Storage
	Retry       RetryConfig
	Budget      BudgetChecker // optional
}

// NewSupervisor creates the model gateway.
func NewSupervisor(cfg *Config) (*Supervisor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel()
	}
	simpleModel := cfg.SimpleModel
	if simpleModel == "" {
		simpleModel = SimpleTaskModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	return &Supervisor{
		client:         &client,
		store:          cfg.Store,
		model:          model,
		simpleModel:    simpleModel,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
		budget:         cfg.Budget,
	}, nil
}

// HealthCheck reports whether the supervisor can take calls right now.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if s.circuitBreaker != nil {
		state, failures, _ := s.circuitBreaker.GetMetrics()
		if state == CircuitOpen {
			return fmt.Errorf("AI supervisor unavailable: %w (failures=%d, retry in %v)",
				ErrCircuitOpen, failures, s.retry.OpenTimeout)
		}
	}
	return nil
}

// callModel runs one prompt through retry, circuit breaker, semaphore,
// and budget check, records usage as an event, and returns the
// response text.
func (s *Supervisor) callModel(ctx context.Context, workID, operation, model, prompt string, maxTokens int64) (string, error) {
	if s.budget != nil {
		ok, reason := s.budget.CanProceed(ctx)
		if !ok {
			return "", fmt.Errorf("%s blocked: %s: %w", operation, reason, ErrBudgetExceeded)
		}
	}
	if model == "" {
		model = s.model
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}

	start := time.Now()
	var response *anthropic.Message
	err := s.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := s.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	s.recordUsage(ctx, workID, operation, model,
		response.Usage.InputTokens, response.Usage.OutputTokens, time.Since(start))
	return text.String(), nil
}

// recordUsage writes an ai_usage event. Failures are warnings, never
// fatal to the call that produced the usage.
func (s *Supervisor) recordUsage(ctx context.Context, workID, operation, model string, inputTokens, outputTokens int64, duration time.Duration) {
	e, err := events.NewAIUsage(workID, "", "", events.AIUsageData{
		Model:        model,
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		DurationMS:   duration.Milliseconds(),
	})
	if err == nil {
		err = s.store.StoreEvent(ctx, e)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record AI usage: %v\n", err)
	}
}
