package vector

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ltser-cli/internal/fetcher"
)

// ErrNoBoundaries is returned by Resolve when a directory holds no
// recognised boundary file.
var ErrNoBoundaries = eris.New("vector: no boundary file")

// boundaryNames lists the accepted boundary file names, in lookup order.
var boundaryNames = []string{
	"boundaries.shp.zip",
	"boundaries.zip",
	"boundaries.shp",
	"boundaries.geojson",
	"boundaries.json",
}

// Resolve returns the path of the boundary file in dir, trying the zipped
// shapefile first.
func Resolve(dir string) (string, error) {
	for _, name := range boundaryNames {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", eris.Wrapf(ErrNoBoundaries, "in %s", dir)
}

// Open reads a boundary file: a zipped shapefile, a bare .shp, or GeoJSON.
func Open(path string) (*Layer, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return openZIP(path)
	case strings.HasSuffix(lower, ".shp"):
		return ReadShapefile(path)
	case strings.HasSuffix(lower, ".geojson"), strings.HasSuffix(lower, ".json"):
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "vector: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return DecodeGeoJSON(f)
	default:
		return nil, eris.Errorf("vector: unsupported boundary format %s", filepath.Base(path))
	}
}

func openZIP(path string) (*Layer, error) {
	tmp, err := os.MkdirTemp("", "ltser-shp-*")
	if err != nil {
		return nil, eris.Wrap(err, "vector: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	if _, err := fetcher.Unzip(path, tmp); err != nil {
		return nil, eris.Wrapf(err, "vector: extract %s", path)
	}

	if shpPath, err := fetcher.FindByExt(tmp, ".shp"); err == nil {
		return ReadShapefile(shpPath)
	}
	for _, ext := range []string{".geojson", ".json"} {
		if p, err := fetcher.FindByExt(tmp, ext); err == nil {
			return Open(p)
		}
	}
	return nil, eris.Errorf("vector: %s holds no shapefile or geojson", filepath.Base(path))
}

// Save writes the layer as dir/<name>.shp.zip and returns the archive path.
// The archive appears atomically; the directory is created if needed.
func Save(dir, name string, l *Layer, fields []ShapeField) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "vector: create %s", dir)
	}

	tmp, err := os.MkdirTemp("", "ltser-write-*")
	if err != nil {
		return "", eris.Wrap(err, "vector: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	shpPath := filepath.Join(tmp, name+".shp")
	if err := WriteShapefile(shpPath, l, fields); err != nil {
		return "", err
	}

	zipPath := filepath.Join(dir, name+".shp.zip")
	if err := fetcher.Zip(zipPath, ShapefileParts(shpPath)); err != nil {
		return "", eris.Wrapf(err, "vector: archive %s", zipPath)
	}
	return zipPath, nil
}
