// Package fetcher is the HTTP transport used against remote registries and
// the ZIP packing used for shapefile archives.
package fetcher

import (
	"context"
	"io"
)

// Fetcher performs GET requests against a remote service.
type Fetcher interface {
	// Get returns the body of a 200 response. The caller closes it.
	Get(ctx context.Context, url string) (io.ReadCloser, error)

	// GetJSON decodes a 200 JSON response into out.
	GetJSON(ctx context.Context, url string, out any) error
}
