// Package deims fetches research-site metadata and boundaries from the
// DEIMS-SDR registry.
package deims

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/fetcher"
	"github.com/sells-group/ltser-cli/internal/metrics"
	"github.com/sells-group/ltser-cli/internal/resilience"
	"github.com/sells-group/ltser-cli/internal/vector"
)

const (
	DefaultBaseURL      = "https://deims.org"
	DefaultGeoserverURL = "https://deims.org/geoserver/deims/ows"

	boundaryLayer = "deims:deims_sites_boundaries"
)

// Client talks to the DEIMS-SDR registry.
type Client interface {
	// FetchSiteMetadata returns the compact metadata of a site.
	FetchSiteMetadata(ctx context.Context, id string) (*catalog.SiteMetadata, error)

	// FetchSiteBoundaries returns the site boundary in WGS84.
	FetchSiteBoundaries(ctx context.Context, id string) (*vector.Layer, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL sets the registry root, e.g. "https://deims.org".
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithGeoserverURL sets the WFS endpoint serving site boundaries.
func WithGeoserverURL(u string) Option {
	return func(c *client) { c.geoserverURL = u }
}

// WithFetcher replaces the HTTP transport.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *client) { c.fetcher = f }
}

// WithTimeout sets the per-request timeout. Zero leaves it to the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.timeout = d }
}

// WithRateLimit sets the requests-per-second limit against the registry.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.rps = rps }
}

// WithBreaker guards registry calls with b. While b is open, fetches fail
// with a RemoteFetchError wrapping resilience.ErrOpen without a request.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *client) { c.breaker = b }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) { c.userAgent = ua }
}

type client struct {
	baseURL      string
	geoserverURL string
	fetcher      fetcher.Fetcher
	timeout      time.Duration
	rps          float64
	userAgent    string
	breaker      *resilience.Breaker
}

// NewClient creates a registry client. Requests are made once, without
// retries.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:      DefaultBaseURL,
		geoserverURL: DefaultGeoserverURL,
		rps:          2,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: c.userAgent,
			Timeout:   c.timeout,
			Rate:      rate.Limit(c.rps),
			Accept:    "application/json",
		})
	}
	return c
}

// NormalizeID validates a site identifier and returns its lowercase UUID
// suffix. Any URL prefix up to the last slash is stripped first.
func NormalizeID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if !uuidShape(s) {
		return "", &InvalidIdentifierError{Input: raw}
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", &InvalidIdentifierError{Input: raw, Err: err}
	}
	return u.String(), nil
}

// uuidShape checks the 8-4-4-4-12 hex layout. uuid.Parse alone also accepts
// braced and urn-prefixed forms.
func uuidShape(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(c) {
				return false
			}
		}
	}
	return true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

type siteResponse struct {
	ID         catalog.SiteID `json:"id"`
	Title      string         `json:"title"`
	Attributes struct {
		General struct {
			SiteName string `json:"siteName"`
		} `json:"general"`
	} `json:"attributes"`
}

func (c *client) FetchSiteMetadata(ctx context.Context, id string) (*catalog.SiteMetadata, error) {
	suffix, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + "/api/sites/" + suffix
	start := time.Now()
	md, err := guard(ctx, c.breaker, u, func(ctx context.Context) (*catalog.SiteMetadata, error) {
		return c.fetchMetadata(ctx, u)
	})
	metrics.ObserveRegistry("site", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("deims: fetched site metadata", zap.String("id", suffix), zap.String("name", md.DisplayName))
	return md, nil
}

func (c *client) fetchMetadata(ctx context.Context, u string) (*catalog.SiteMetadata, error) {
	var raw json.RawMessage
	if err := c.fetcher.GetJSON(ctx, u, &raw); err != nil {
		return nil, &RemoteFetchError{URL: u, Err: err}
	}

	var resp siteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &RemoteFetchError{URL: u, Err: err}
	}
	name := resp.Title
	if name == "" {
		name = resp.Attributes.General.SiteName
	}
	var missing []string
	if resp.ID.Suffix == "" {
		missing = append(missing, "id")
	}
	if name == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return nil, &RemoteFetchError{URL: u, Err: &catalog.SchemaValidationError{Path: u, Missing: missing}}
	}

	return &catalog.SiteMetadata{
		ID:                     resp.ID,
		DisplayName:            name,
		NationalZonesAvailable: false,
	}, nil
}

func (c *client) FetchSiteBoundaries(ctx context.Context, id string) (*vector.Layer, error) {
	suffix, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}

	u := c.boundariesURL(suffix)
	start := time.Now()
	layer, err := guard(ctx, c.breaker, u, func(ctx context.Context) (*vector.Layer, error) {
		return c.fetchBoundaries(ctx, u)
	})
	metrics.ObserveRegistry("boundaries", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("deims: fetched site boundaries", zap.String("id", suffix), zap.Int("features", layer.Len()))
	return layer, nil
}

func (c *client) fetchBoundaries(ctx context.Context, u string) (*vector.Layer, error) {
	body, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return nil, &RemoteFetchError{URL: u, Err: err}
	}
	defer body.Close() //nolint:errcheck

	layer, err := vector.DecodeGeoJSON(body)
	if err != nil {
		return nil, &RemoteFetchError{URL: u, Err: err}
	}
	if layer.Len() == 0 {
		return nil, &RemoteFetchError{URL: u, Err: ErrNoBoundaries}
	}
	return layer, nil
}

// boundariesURL builds the WFS GetFeature request for one site.
func (c *client) boundariesURL(suffix string) string {
	q := url.Values{}
	q.Set("service", "WFS")
	q.Set("version", "2.0.0")
	q.Set("request", "GetFeature")
	q.Set("typeName", boundaryLayer)
	q.Set("srsName", "EPSG:4326")
	q.Set("outputFormat", "application/json")
	q.Set("CQL_FILTER", "deimsid='"+c.baseURL+"/"+suffix+"'")
	return c.geoserverURL + "?" + q.Encode()
}
