package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the breaker's current mode.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultCircuitBreakerConfig returns sane defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// CircuitBreakerStats is a snapshot for diagnostics/HTTP status reporting.
type CircuitBreakerStats struct {
	State        CircuitState
	Failures     int
	LastFailure  time.Time
	SuccessCount int64
	FailureCount int64
}

// CircuitBreaker guards an operation (typically a network call) that
// should stop being attempted after repeated failures, used by
// pkg/client's reconnect loop.
type CircuitBreaker struct {
	mu           sync.Mutex
	cfg          CircuitBreakerConfig
	state        CircuitState
	failures     int
	lastFailure  time.Time
	successCount int64
	failureCount int64
}

// NewCircuitBreaker constructs a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn if the breaker allows it, recording success/failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return fmt.Errorf("resilience: circuit breaker open")
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.cfg.ResetTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.failureCount++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.cfg.FailureThreshold || cb.state == StateHalfOpen {
			cb.state = StateOpen
		}
		return
	}
	cb.successCount++
	cb.failures = 0
	cb.state = StateClosed
}

// GetStats returns a snapshot of the breaker's state.
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:        cb.state,
		Failures:     cb.failures,
		LastFailure:  cb.lastFailure,
		SuccessCount: cb.successCount,
		FailureCount: cb.failureCount,
	}
}
