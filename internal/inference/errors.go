package inference

import (
	"fmt"
	"time"
)

// ErrUnavailable indicates a transient failure (rate-limited, timeout, server error).
type ErrUnavailable struct {
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("inference service unavailable: %v", e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrAuthRequired indicates the service needs an API key but none is
// configured, or the key was rejected.
type ErrAuthRequired struct {
	Status int
}

func (e *ErrAuthRequired) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("inference service rejected credentials (HTTP %d)", e.Status)
	}
	return "inference service: API key not configured"
}
