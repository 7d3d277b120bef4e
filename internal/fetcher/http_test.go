package fetcher

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
	"golang.org/x/time/rate"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "test-agent", Accept: "application/json", Timeout: 5 * time.Second, Rate: rate.Inf})
	body, err := f.Get(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestGet_DefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ltser-cli/1.0", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("Accept"))
	}))
	defer srv.Close()

	body, err := NewHTTPFetcher(HTTPOptions{}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close() //nolint:errcheck
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"LTSER Platform Eisenwurzen"}`))
	}))
	defer srv.Close()

	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, NewHTTPFetcher(HTTPOptions{Rate: rate.Inf}).GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "LTSER Platform Eisenwurzen", out.Title)
}

func TestGetJSON_Invalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	var out map[string]any
	err := NewHTTPFetcher(HTTPOptions{Rate: rate.Inf}).GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode json")
}

func TestGet_StatusErrorSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(HTTPOptions{Rate: rate.Inf}).Get(context.Background(), srv.URL+"/api/sites/x")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
	assert.Contains(t, statusErr.Error(), "upstream down")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(HTTPOptions{Rate: rate.Inf}).Get(context.Background(), addr)
	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestGet_BodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	body, err := NewHTTPFetcher(HTTPOptions{Rate: rate.Inf, MaxBodyBytes: 10}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	_, err = io.ReadAll(body)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	body, err = NewHTTPFetcher(HTTPOptions{Rate: rate.Inf, MaxBodyBytes: 100}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Len(t, data, 100)
}

func TestGet_RateLimitedPerHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Rate: 5})
	start := time.Now()
	for i := 0; i < 3; i++ {
		body, err := f.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		body.Close() //nolint:errcheck
	}
	// Burst 1 at 5/s: the second and third requests wait ~200ms each.
	assert.GreaterOrEqual(t, time.Since(start), 350*time.Millisecond)
	assert.Same(t, f.limiter("example.org"), f.limiter("example.org"))
}

func TestGet_CanceledWhileWaiting(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{Rate: 0.001})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Get(ctx, "http://example.invalid/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter wait")
}

func TestGet_BadURL(t *testing.T) {
	_, err := NewHTTPFetcher(HTTPOptions{}).Get(context.Background(), "://nope")
	assert.Error(t, err)
}
