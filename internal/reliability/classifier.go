package reliability

import (
	"context"
	"errors"
	"math"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Backoff describes a capped geometric delay schedule:
// delay(n) = min(Base * Growth^n, Cap).
type Backoff struct {
	Base   time.Duration
	Growth float64
	Cap    time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	growth := b.Growth
	if growth < 1 {
		growth = 1
	}
	d := float64(b.Base) * math.Pow(growth, float64(attempt))
	if b.Cap > 0 && (d >= float64(b.Cap) || math.IsInf(d, 1)) {
		return b.Cap
	}
	return time.Duration(d)
}

// PermanentError marks an error that must not be retried or routed to an
// alternate target.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsRetryable reports false.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRetryable reports whether err is worth retrying, possibly elsewhere.
// Context cancellation and errors marked Permanent are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *PermanentError
	return !errors.As(err, &perm)
}
