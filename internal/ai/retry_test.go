package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func testRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 2
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.Timeout = time.Second
	cfg.FailureThreshold = 3
	cfg.SuccessThreshold = 2
	cfg.OpenTimeout = 20 * time.Millisecond
	return cfg
}

func testSupervisor(cfg RetryConfig) *Supervisor {
	return &Supervisor{
		retry:          cfg,
		circuitBreaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout),
		concurrencySem: semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute)

	for i := 0; i < 3; i++ {
		assert.NoError(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, CircuitOpen, cb.GetState())

	// After the open timeout a probe is admitted.
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	// A failed probe reopens the circuit.
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerClosesAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.GetState())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.NoError(t, cb.Allow())
}

func TestRetryWithBackoffRetriesTransientErrors(t *testing.T) {
	s := testSupervisor(testRetryConfig())

	attempts := 0
	err := s.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("429 too many requests")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoffStopsOnNonRetriable(t *testing.T) {
	s := testSupervisor(testRetryConfig())

	attempts := 0
	err := s.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		attempts++
		return errors.New("invalid_request_error: prompt too long")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	// Non-retriable failures do not trip the breaker.
	assert.Equal(t, CircuitClosed, s.circuitBreaker.GetState())
}

func TestRetryWithBackoffCircuitOpen(t *testing.T) {
	cfg := testRetryConfig()
	s := testSupervisor(cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		s.circuitBreaker.RecordFailure()
	}

	err := s.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		t.Fatal("operation should not run while circuit is open")
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"overloaded", errors.New("529 overloaded_error"), true},
		{"server error", errors.New("internal server error (500)"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"bad request", errors.New("400 invalid_request_error"), false},
		{"auth", errors.New("401 authentication_error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableError(tt.err))
		})
	}
}
