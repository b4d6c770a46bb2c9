package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(opts Options) *RetryClient {
	rc := NewRetryClient(nil, opts)
	rc.unit = time.Millisecond
	return rc
}

func TestRetriesRetryableStatusThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"page":1}`, string(body), "body is replayed on retry")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var retries int32
	rc := fastClient(Options{MaxAttempts: 3, OnRetry: func() { atomic.AddInt32(&retries, 1) }})
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"page":1}`))
	require.NoError(t, err)

	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&retries))
}

func TestReturnsLastResponseWhenAttemptsExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rc := fastClient(Options{MaxAttempts: 2})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rc := fastClient(Options{})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCustomStatusCodes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rc := fastClient(Options{StatusCodes: []int{http.StatusConflict}})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type failingDoer struct{ calls int }

func (f *failingDoer) Do(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, errors.New("connection reset")
}

func TestTransportErrorsAreRetried(t *testing.T) {
	doer := &failingDoer{}
	rc := NewRetryClient(doer, Options{MaxAttempts: 3})
	rc.unit = time.Millisecond

	req, _ := http.NewRequest(http.MethodGet, "http://upstream.invalid", nil)
	_, err := rc.Do(req)
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, 3, doer.calls)
}

func TestCanceledContextStopsRetries(t *testing.T) {
	doer := &failingDoer{}
	rc := NewRetryClient(doer, Options{MaxAttempts: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream.invalid", nil)
	_, err := rc.Do(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, doer.calls)
}

func TestCalculateDelay(t *testing.T) {
	rc := NewRetryClient(nil, Options{BackoffFactor: 2, MaxDelay: 5 * time.Second})
	assert.Equal(t, 2*time.Second, rc.calculateDelay(1))
	assert.Equal(t, 4*time.Second, rc.calculateDelay(2))
	assert.Equal(t, 5*time.Second, rc.calculateDelay(3))
}
