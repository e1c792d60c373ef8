package llms

import (
	"errors"
	"fmt"

	"github.com/kadirpekel/deepresearch/pkg/httpclient"
)

// ModelUnavailableError wraps a transport failure talking to the backend
// after the retry budget is spent.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// ContextOverflowError signals the prompt exceeds the backend context window.
// It is not retryable; callers respond by pruning.
type ContextOverflowError struct {
	Model  string
	Tokens int
	Limit  int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("model %s context overflow: %d tokens > %d limit", e.Model, e.Tokens, e.Limit)
}

// StructuredOutputError signals that no schema-valid document was obtained
// within the structured retry budget.
type StructuredOutputError struct {
	Schema   string
	Attempts int
	LastErr  error
	Raw      string
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output for %q failed after %d attempts: %v", e.Schema, e.Attempts, e.LastErr)
}

func (e *StructuredOutputError) Unwrap() error {
	return e.LastErr
}

// ToolParseError signals a reply that could not be decoded as a tool call.
// Loops convert it to an observation nudging the model, bounded per step.
type ToolParseError struct {
	Raw string
	Err error
}

func (e *ToolParseError) Error() string {
	return fmt.Sprintf("tool call not parseable: %v", e.Err)
}

func (e *ToolParseError) Unwrap() error {
	return e.Err
}

// IsRetryableTransport reports whether err is a transport failure that
// already exhausted its own retry budget, making it fatal for the step.
func IsRetryableTransport(err error) bool {
	var te *httpclient.TransportError
	return errors.As(err, &te)
}

// WrapTransport converts transport errors into ModelUnavailableError so the
// error taxonomy is uniform at the adapter boundary.
func WrapTransport(model string, err error) error {
	if err == nil {
		return nil
	}
	var te *httpclient.TransportError
	if errors.As(err, &te) {
		return &ModelUnavailableError{Model: model, Err: err}
	}
	return err
}
