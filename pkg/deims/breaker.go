package deims

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/fetcher"
	"github.com/sells-group/ltser-cli/internal/resilience"
)

// NewBreaker returns a breaker for registry calls. Only outages count
// toward opening it: answers about a specific site (4xx, malformed or
// empty responses) and caller cancellation do not.
func NewBreaker(cfg resilience.Config) *resilience.Breaker {
	cfg.Counts = isOutage
	return resilience.New(cfg)
}

func isOutage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNoBoundaries) {
		return false
	}
	var status *fetcher.StatusError
	if errors.As(err, &status) {
		return status.StatusCode >= http.StatusInternalServerError || status.StatusCode == http.StatusTooManyRequests
	}
	var (
		schema    *catalog.SchemaValidationError
		syntax    *json.SyntaxError
		valueType *json.UnmarshalTypeError
	)
	return !errors.As(err, &schema) && !errors.As(err, &syntax) && !errors.As(err, &valueType)
}

// guard runs fn through b when b is set.
func guard[T any](ctx context.Context, b *resilience.Breaker, u string, fn func(context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	v, err := resilience.Call(ctx, b, fn)
	if errors.Is(err, resilience.ErrOpen) {
		return v, &RemoteFetchError{URL: u, Err: err}
	}
	return v, err
}
