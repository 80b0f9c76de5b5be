// Package resilience classifies failures and provides retry/backoff helpers
// shared by the executor, broker, and TCP client, adapted from the
// teacher's pkg/resilience/errors.go and circuit_breaker.go.
package resilience

import (
	"fmt"
	"time"
)

// ErrorType classifies a failure for retry/logging decisions.
type ErrorType int

const (
	UnknownError ErrorType = iota
	NetworkError
	ProcessingError
	TimeoutError
	ConfigurationError
)

func (t ErrorType) String() string {
	switch t {
	case NetworkError:
		return "network"
	case ProcessingError:
		return "processing"
	case TimeoutError:
		return "timeout"
	case ConfigurationError:
		return "configuration"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with a type, a component name, and whether
// the operation that produced it is worth retrying.
type ClassifiedError struct {
	Err       error
	Type      ErrorType
	Retryable bool
	Component string
	Timestamp time.Time
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Component, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with the given type/component, defaulting Retryable to
// true for network and timeout errors.
func Classify(err error, t ErrorType, component string) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      t,
		Retryable: t == NetworkError || t == TimeoutError,
		Component: component,
		Timestamp: time.Now(),
	}
}
