package deims

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/fetcher"
	"github.com/sells-group/ltser-cli/internal/resilience"
)

func (r *registry) guardedClient(b *resilience.Breaker) Client {
	return NewClient(
		WithBaseURL(r.server.URL),
		WithGeoserverURL(r.server.URL+"/geoserver/deims/ows"),
		WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Rate: 1000})),
		WithBreaker(b),
	)
}

func TestBreaker_OpensOnOutage(t *testing.T) {
	reg := newRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, writeJSON(boundaryJSON))
	b := NewBreaker(resilience.Config{Threshold: 2, Cooldown: time.Hour})
	c := reg.guardedClient(b)

	for i := 0; i < 2; i++ {
		_, err := c.FetchSiteMetadata(context.Background(), siteID)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.Open, b.State())

	_, err := c.FetchSiteBoundaries(context.Background(), siteID)
	var fetchErr *RemoteFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, int32(2), reg.calls.Load())
}

func TestBreaker_SiteAnswersDoNotTrip(t *testing.T) {
	reg := newRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}, writeJSON(`{"type":"FeatureCollection","features":[]}`))
	b := NewBreaker(resilience.Config{Threshold: 1})
	c := reg.guardedClient(b)

	_, err := c.FetchSiteMetadata(context.Background(), siteID)
	require.Error(t, err)
	_, err = c.FetchSiteBoundaries(context.Background(), siteID)
	require.ErrorIs(t, err, ErrNoBoundaries)
	assert.Equal(t, resilience.Closed, b.State())
}

func TestBreaker_MalformedJSONDoesNotTrip(t *testing.T) {
	reg := newRegistry(t, writeJSON(`{"title": }`), writeJSON(boundaryJSON))
	b := NewBreaker(resilience.Config{Threshold: 1})
	c := reg.guardedClient(b)

	for i := 0; i < 2; i++ {
		_, err := c.FetchSiteMetadata(context.Background(), siteID)
		var fetchErr *RemoteFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.NotErrorIs(t, err, resilience.ErrOpen)
	}
	assert.Equal(t, resilience.Closed, b.State())
	assert.Equal(t, int32(2), reg.calls.Load())
}

func TestIsOutage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", eris.Wrap(context.Canceled, "fetch"), false},
		{"no boundaries", &RemoteFetchError{Err: ErrNoBoundaries}, false},
		{"not found", &RemoteFetchError{Err: &fetcher.StatusError{StatusCode: http.StatusNotFound}}, false},
		{"throttled", &RemoteFetchError{Err: &fetcher.StatusError{StatusCode: http.StatusTooManyRequests}}, true},
		{"server error", &RemoteFetchError{Err: &fetcher.StatusError{StatusCode: http.StatusServiceUnavailable}}, true},
		{"schema", &RemoteFetchError{Err: &catalog.SchemaValidationError{Missing: []string{"title"}}}, false},
		{"malformed json", &RemoteFetchError{Err: eris.Wrap(&json.SyntaxError{Offset: 3}, "fetcher: decode json")}, false},
		{"wrong json type", &RemoteFetchError{Err: eris.Wrap(&json.UnmarshalTypeError{Value: "number"}, "fetcher: decode json")}, false},
		{"network", &RemoteFetchError{Err: errors.New("connection refused")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOutage(tt.err))
		})
	}
}
