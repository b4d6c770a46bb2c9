// Package httpretry provides an HTTP client that retries transient upstream
// failures with exponential backoff.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultStatusCodes are the responses treated as transient.
var DefaultStatusCodes = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Options configures a RetryClient. Zero values fall back to defaults.
type Options struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// BackoffFactor f waits f^attempt seconds before retry number attempt.
	BackoffFactor float64
	StatusCodes   []int
	MaxDelay      time.Duration
	Logger        *zap.Logger
	// OnRetry is called before each retry, e.g. to count it.
	OnRetry func()
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff.
type RetryClient struct {
	client      HTTPDoer
	maxAttempts int
	factor      float64
	maxDelay    time.Duration
	unit        time.Duration
	retryable   map[int]bool
	logger      *zap.Logger
	onRetry     func()
}

// NewRetryClient creates a new RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 60s timeout is used.
func NewRetryClient(client HTTPDoer, opts Options) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = 2
	}
	if len(opts.StatusCodes) == 0 {
		opts.StatusCodes = DefaultStatusCodes
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	retryable := make(map[int]bool, len(opts.StatusCodes))
	for _, c := range opts.StatusCodes {
		retryable[c] = true
	}
	return &RetryClient{
		client:      client,
		maxAttempts: opts.MaxAttempts,
		factor:      opts.BackoffFactor,
		maxDelay:    opts.MaxDelay,
		unit:        time.Second,
		retryable:   retryable,
		logger:      opts.Logger,
		onRetry:     opts.OnRetry,
	}
}

// Do executes the HTTP request with retry logic.
// It retries on the configured status codes and on transport errors, but
// not once the request context is done. On the final attempt it returns
// the response as-is so the caller can inspect the status code and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= rc.maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 1 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.calculateDelay(attempt - 1)
			rc.logger.Warn("retrying upstream request",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", rc.maxAttempts),
				zap.String("method", req.Method),
				zap.String("host", req.URL.Host),
				zap.String("path", req.URL.Path),
				zap.Duration("wait", delay),
				zap.Error(lastErr))
			if rc.onRetry != nil {
				rc.onRetry()
			}

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !rc.retryable[resp.StatusCode] || attempt == rc.maxAttempts {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay returns factor^retry units, capped at maxDelay.
func (rc *RetryClient) calculateDelay(retry int) time.Duration {
	d := math.Pow(rc.factor, float64(retry)) * float64(rc.unit)
	if d > float64(rc.maxDelay) {
		return rc.maxDelay
	}
	return time.Duration(d)
}
