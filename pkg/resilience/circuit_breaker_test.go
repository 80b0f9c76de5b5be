package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: 50 * time.Millisecond})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), failing)
	}

	stats := cb.GetStats()
	if stats.State != StateOpen {
		t.Fatalf("state = %v, want open", stats.State)
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatalf("expected circuit-open error")
	}
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected half-open attempt to succeed, got %v", err)
	}
	if cb.GetStats().State != StateClosed {
		t.Fatalf("expected breaker to close after success")
	}
}
