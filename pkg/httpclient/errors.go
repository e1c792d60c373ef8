package httpclient

import (
	"fmt"
	"time"
)

// TransportError wraps a transport-level failure (connection error, timeout,
// retryable status code) after the retry budget is spent.
type TransportError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
