// Package catalogtest builds on-disk catalog fixtures for tests.
package catalogtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/vector"
)

// SiteUUID is the DEIMS suffix of the fixture site.
const SiteUUID = "fabf28c6-8fa1-4a81-aaed-ab985cbc4906"

// Box returns an axis-aligned rectangle.
func Box(x0, y0, x1, y1 float64) *geom.MultiPolygon {
	return vector.AssembleRings([][]geom.Coord{
		{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}},
	})
}

// GridLayer returns a WGS84 layer of four 10x10 zones covering (0,0)-(20,20),
// with ids prefix+"1".."4" in NUTS_ID and labels in NAME_LATN.
func GridLayer(prefix string) *vector.Layer {
	boxes := []*geom.MultiPolygon{
		Box(0, 0, 10, 10), Box(10, 0, 20, 10), Box(0, 10, 10, 20), Box(10, 10, 20, 20),
	}
	l := &vector.Layer{CRS: vector.WGS84CRS(), Fields: []string{"NUTS_ID", "NAME_LATN"}}
	for i, b := range boxes {
		id := prefix + string(rune('1'+i))
		l.Features = append(l.Features, vector.Feature{
			Properties: map[string]string{"NUTS_ID": id, "NAME_LATN": "Zone " + id},
			Geometry:   b,
		})
	}
	return l
}

// SiteLayer returns a single-feature WGS84 layer.
func SiteLayer(mp *geom.MultiPolygon) *vector.Layer {
	return &vector.Layer{
		CRS:      vector.WGS84CRS(),
		Fields:   []string{"deimsid"},
		Features: []vector.Feature{{Properties: map[string]string{"deimsid": SiteUUID}, Geometry: mp}},
	}
}

// ZoneMetadata returns a complete zone metadata document.
func ZoneMetadata(name string) map[string]any {
	return map[string]any{"displayName": name, "idColumn": "NUTS_ID", "nameColumn": "NAME_LATN"}
}

// SiteMetadata returns a site metadata document in the registry's id form.
func SiteMetadata(suffix, name string, national bool, natDir string) map[string]any {
	md := map[string]any{
		"id":                     map[string]string{"prefix": "https://deims.org/", "suffix": suffix},
		"displayName":            name,
		"nationalZonesAvailable": national,
	}
	if natDir != "" {
		md["nationalZoneDir"] = natDir
	}
	return md
}

// WriteJSON writes v as JSON to path, creating parent directories.
func WriteJSON(t testing.TB, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// WriteZone writes a zone directory. A nil layer writes metadata only.
func WriteZone(t testing.TB, root string, key catalog.ZoneKey, md map[string]any, layer *vector.Layer) string {
	t.Helper()
	dir := catalog.ZoneDir(root, key)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if md != nil {
		WriteJSON(t, filepath.Join(dir, catalog.MetadataFile), md)
	}
	if layer != nil {
		_, err := vector.Save(dir, "boundaries", layer, nil)
		require.NoError(t, err)
	}
	return dir
}

// WriteSite writes a site directory with its boundary under raw/.
func WriteSite(t testing.TB, root, key string, md map[string]any, layer *vector.Layer) string {
	t.Helper()
	dir := catalog.SiteDir(root, key)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if md != nil {
		WriteJSON(t, filepath.Join(dir, catalog.MetadataFile), md)
	}
	if layer != nil {
		_, err := vector.Save(catalog.RawBoundaryDir(dir), "boundaries", layer, nil)
		require.NoError(t, err)
	}
	return dir
}

// Fixture writes a catalog with NUTS group "AT" (levels 0..3), LAU zone
// "lau2020", national zone "AT"/"bezirke", and site "eisenwurzen" covering
// (5,5)-(15,15) with national zones of group "AT". No composites are built.
func Fixture(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	for level := 0; level < catalog.NUTSLevels; level++ {
		WriteZone(t, root, catalog.NUTSKey("AT", level),
			ZoneMetadata("NUTS "+string(rune('0'+level))), GridLayer("AT"+string(rune('0'+level))))
	}
	WriteZone(t, root, catalog.LAUKey("lau2020"), ZoneMetadata("LAU 2020"), GridLayer("L"))
	WriteZone(t, root, catalog.NationalKey("AT", "bezirke"), ZoneMetadata("Bezirke"), GridLayer("B"))
	WriteSite(t, root, "eisenwurzen", SiteMetadata(SiteUUID, "LTSER Eisenwurzen", true, "AT"), SiteLayer(Box(5, 5, 15, 15)))
	return root
}
