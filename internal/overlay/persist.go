package overlay

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ltser-cli/internal/fetcher"
	"github.com/sells-group/ltser-cli/internal/vector"
)

// BoundaryName is the base name of persisted composite files.
const BoundaryName = "boundaries"

var shapeFields = []vector.ShapeField{
	{Name: ColZoneID},
	{Name: ColZoneName},
	{Name: ColAreaRatio, Numeric: true, Precision: 15},
}

// Save writes the composite as dir/boundaries.shp.zip, replacing whatever
// the directory held before. It returns the archive path.
func Save(dir string, c *Composite) (string, error) {
	staging := dir + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return "", eris.Wrapf(err, "overlay: clear %s", staging)
	}
	if _, err := vector.Save(staging, BoundaryName, c.Layer(), shapeFields); err != nil {
		_ = os.RemoveAll(staging)
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		_ = os.RemoveAll(staging)
		return "", eris.Wrapf(err, "overlay: clear %s", dir)
	}
	if err := os.Rename(staging, dir); err != nil {
		_ = os.RemoveAll(staging)
		return "", eris.Wrapf(err, "overlay: move %s into place", dir)
	}
	return filepath.Join(dir, BoundaryName+".shp.zip"), nil
}

// Load reads a persisted composite. path is either a composite directory
// holding boundaries.* (or any single shapefile) or a boundary file.
func Load(path string) (*Composite, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "overlay: stat %s", path)
	}

	file := path
	if st.IsDir() {
		file, err = vector.Resolve(path)
		if err != nil {
			shp, ferr := fetcher.FindByExt(path, ".shp")
			if ferr != nil {
				return nil, err
			}
			file = shp
		}
	}

	l, err := vector.Open(file)
	if err != nil {
		return nil, err
	}
	c, err := FromLayer(l)
	if err != nil {
		return nil, eris.Wrapf(err, "overlay: load %s", filepath.Base(file))
	}
	return c, nil
}
