package provision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/catalog/catalogtest"
	"github.com/sells-group/ltser-cli/internal/composite"
	"github.com/sells-group/ltser-cli/internal/store"
	"github.com/sells-group/ltser-cli/internal/vector"
	"github.com/sells-group/ltser-cli/pkg/deims"
)

const newSite = "8eda49e9-1f4e-4f3e-b58e-e0bb25dc32a6"

type fakeClient struct {
	name     string
	layer    *vector.Layer
	boundErr error
	calls    int
}

func (f *fakeClient) FetchSiteMetadata(_ context.Context, id string) (*catalog.SiteMetadata, error) {
	f.calls++
	return &catalog.SiteMetadata{
		ID:          catalog.SiteID{Prefix: "https://deims.org/", Suffix: id},
		DisplayName: f.name,
	}, nil
}

func (f *fakeClient) FetchSiteBoundaries(_ context.Context, id string) (*vector.Layer, error) {
	f.calls++
	if f.boundErr != nil {
		return nil, f.boundErr
	}
	return f.layer, nil
}

type env struct {
	root   string
	cat    *catalog.Catalog
	client *fakeClient
	ledger *store.SQLiteStore
	p      *Provisioner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := catalogtest.Fixture(t)
	cat, _, err := catalog.Load(root)
	require.NoError(t, err)

	ledger, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() }) //nolint:errcheck
	require.NoError(t, ledger.Migrate(context.Background()))

	client := &fakeClient{name: "LTSER Zone Atlantique", layer: catalogtest.SiteLayer(catalogtest.Box(2, 2, 8, 8))}
	return &env{
		root:   root,
		cat:    cat,
		client: client,
		ledger: ledger,
		p:      New(cat, client, composite.NewBuilder(ledger), ledger),
	}
}

func siteDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, catalog.SitesDir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProvisionSite(t *testing.T) {
	e := newEnv(t)

	site, err := e.p.ProvisionSite(context.Background(), "https://deims.org/"+newSite)
	require.NoError(t, err)
	assert.Equal(t, newSite, site.Key)
	assert.Equal(t, "LTSER Zone Atlantique", site.Metadata.DisplayName)
	assert.Equal(t, catalog.SiteDir(e.root, newSite), site.Dir)
	require.Len(t, site.Composites, 5)

	comp := site.Composites[catalog.NUTSKey("AT", 0)]
	require.NotNil(t, comp)
	require.Equal(t, 1, comp.Len())
	assert.Equal(t, "AT01", comp.Rows[0].ZoneID)
	assert.InDelta(t, 0.36, comp.Rows[0].AreaRatio, 1e-9)

	got, ok := e.cat.Site(newSite)
	require.True(t, ok)
	assert.Same(t, site, got)
	assert.Contains(t, e.cat.SiteOptions(), catalog.Option{Label: "LTSER Zone Atlantique", Key: newSite})
	assert.Len(t, e.cat.ZoneOptions(newSite), 5)

	// The tree round-trips through the loader.
	reloaded, report, err := catalog.Load(e.root)
	require.NoError(t, err)
	assert.Empty(t, report.Skipped())
	s, ok := reloaded.Site(newSite)
	require.True(t, ok)
	assert.Equal(t, newSite, s.Metadata.ID.Suffix)
	assert.False(t, s.Metadata.NationalZonesAvailable)
	assert.Len(t, s.Composites, 5)
	missing := composite.NewBuilder(nil).Missing(reloaded)
	require.Len(t, missing.Sites, 1)
	assert.Equal(t, "eisenwurzen", missing.Sites[0].Site)

	builds, err := e.ledger.ListBuilds(context.Background(), store.BuildFilter{Kind: store.KindProvision})
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, newSite, builds[0].Site)
	assert.Equal(t, 5, builds[0].Rows)
	assert.Equal(t, store.StatusSucceeded, builds[0].Status)
}

func TestProvisionSite_InvalidID(t *testing.T) {
	e := newEnv(t)

	_, err := e.p.ProvisionSite(context.Background(), "not-a-uuid")
	var idErr *deims.InvalidIdentifierError
	require.True(t, errors.As(err, &idErr))
	assert.Zero(t, e.client.calls)
	assert.Equal(t, []string{"eisenwurzen"}, siteDirs(t, e.root))

	builds, err := e.ledger.ListBuilds(context.Background(), store.BuildFilter{Kind: store.KindProvision})
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, store.StatusFailed, builds[0].Status)
	assert.Equal(t, "not-a-uuid", builds[0].Site)
}

func TestProvisionSite_RemoteFailureLeavesNothing(t *testing.T) {
	e := newEnv(t)
	e.client.boundErr = &deims.RemoteFetchError{URL: "https://deims.org/geoserver", Err: deims.ErrNoBoundaries}

	_, err := e.p.ProvisionSite(context.Background(), newSite)
	var fetchErr *deims.RemoteFetchError
	require.True(t, errors.As(err, &fetchErr))

	_, ok := e.cat.Site(newSite)
	assert.False(t, ok)
	assert.Equal(t, []string{"eisenwurzen"}, siteDirs(t, e.root))
}

func TestProvisionSite_ComposeFailureLeavesNothing(t *testing.T) {
	e := newEnv(t)
	z, ok := e.cat.Zone(catalog.LAUKey("lau2020"))
	require.True(t, ok)
	z.Metadata.NameColumn = "MISSING"

	_, err := e.p.ProvisionSite(context.Background(), newSite)
	var schemaErr *catalog.SchemaValidationError
	require.True(t, errors.As(err, &schemaErr))

	_, ok = e.cat.Site(newSite)
	assert.False(t, ok)
	assert.Equal(t, []string{"eisenwurzen"}, siteDirs(t, e.root))
}

func TestProvisionSite_ReplacesExisting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.p.ProvisionSite(ctx, newSite)
	require.NoError(t, err)

	e.client.name = "Renamed"
	e.client.layer = catalogtest.SiteLayer(catalogtest.Box(12, 12, 18, 18))
	site, err := e.p.ProvisionSite(ctx, newSite)
	require.NoError(t, err)
	assert.Equal(t, "AT04", site.Composites[catalog.NUTSKey("AT", 0)].Rows[0].ZoneID)

	assert.ElementsMatch(t, []string{"eisenwurzen", newSite}, siteDirs(t, e.root))
	md, err := catalog.ReadSiteMetadata(filepath.Join(site.Dir, catalog.MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", md.DisplayName)
	assert.Len(t, e.cat.Sites(), 2)
}

func TestSaveSite_RequiresBoundary(t *testing.T) {
	root := t.TempDir()
	site := &catalog.Site{
		Key:      newSite,
		Metadata: catalog.SiteMetadata{ID: catalog.SiteID{Suffix: newSite}, DisplayName: "x"},
	}
	require.Error(t, SaveSite(root, site))
	assert.Empty(t, siteDirs(t, root))
	assert.Empty(t, site.Dir)
}

func TestProvisionSite_OverHTTP(t *testing.T) {
	root := catalogtest.Fixture(t)
	cat, _, err := catalog.Load(root)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sites/"+newSite, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"title": "Remote Site", "id": {"prefix": "https://deims.org/", "suffix": "` + newSite + `"}}`))
	})
	mux.HandleFunc("/ows", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type": "FeatureCollection", "features": [{"type": "Feature",
			"properties": {"deimsid": "x"},
			"geometry": {"type": "Polygon", "coordinates": [[[1,1],[19,1],[19,19],[1,19],[1,1]]]}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := deims.NewClient(deims.WithBaseURL(srv.URL), deims.WithGeoserverURL(srv.URL+"/ows"), deims.WithRateLimit(100))
	p := New(cat, client, composite.NewBuilder(nil), nil)

	site, err := p.ProvisionSite(context.Background(), newSite)
	require.NoError(t, err)
	assert.Equal(t, "Remote Site", site.Metadata.DisplayName)
	comp := site.Composites[catalog.LAUKey("lau2020")]
	require.NotNil(t, comp)
	assert.Equal(t, 4, comp.Len())
	assert.FileExists(t, filepath.Join(site.Dir, catalog.RawDir, "boundaries.shp.zip"))
}
