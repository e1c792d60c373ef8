// Package httpclient provides the retrying HTTP client shared by the LLM
// providers and the search provider. Retries use exponential backoff with
// jitter; retryability is decided per status code.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryStrategy classifies whether and how a failed request is retried.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	BackoffRetry
)

// RetryStrategyFunc maps an HTTP status code to a retry strategy.
type RetryStrategyFunc func(statusCode int) RetryStrategy

type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	strategyFunc RetryStrategyFunc
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 120 * time.Second},
		maxRetries:   3,
		baseDelay:    time.Second,
		strategyFunc: DefaultRetryStrategy,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// DefaultRetryStrategy retries rate limits, server errors and timeouts.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return BackoffRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying transport failures and retryable status
// codes up to maxRetries. The request body must be re-creatable (GetBody set)
// for retries to work; http.NewRequest sets it for byte readers.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
				}
				req.Body = body
			}

			delay := c.backoffDelay(attempt)
			slog.Debug("retrying request", "url", req.URL.Path, "attempt", attempt, "delay", delay)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				// Cancellation is not retryable.
				return nil, req.Context().Err()
			}
			lastErr = err
			lastStatus = 0
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		if c.strategyFunc(resp.StatusCode) == NoRetry {
			return resp, nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		lastStatus = resp.StatusCode
		resp.Body.Close()
	}

	return nil, &TransportError{
		StatusCode: lastStatus,
		Message:    fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
		RetryAfter: c.backoffDelay(c.maxRetries + 1),
		Err:        lastErr,
	}
}

// backoffDelay computes the exponential delay for the given attempt with up
// to 10% jitter.
func (c *Client) backoffDelay(attempt int) time.Duration {
	exponential := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseDelay
	jitter := time.Duration(rand.Int63n(int64(exponential)/10 + 1))
	return exponential + jitter
}
