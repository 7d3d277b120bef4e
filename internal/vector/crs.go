package vector

import (
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/twpayne/go-geom"
)

// WGS84 is the geographic CRS used for GeoJSON payloads (RFC 7946) and
// DEIMS boundaries, in the ESRI WKT form written to .prj files.
const WGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// GeometryError reports an undefined or unreconcilable CRS, or a geometry
// that cannot take part in an overlay.
type GeometryError struct {
	Op  string
	Err error
}

func (e *GeometryError) Error() string {
	if e.Err == nil {
		return "geometry: " + e.Op
	}
	return "geometry: " + e.Op + ": " + e.Err.Error()
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// CRS is a parsed coordinate reference system together with the definition
// it was parsed from (WKT or PROJ.4), which is what gets persisted.
type CRS struct {
	def string
	sr  *proj.SR
}

// ParseCRS parses a WKT or PROJ.4 definition.
func ParseCRS(def string) (*CRS, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return nil, &GeometryError{Op: "parse crs: empty definition"}
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, &GeometryError{Op: "parse crs", Err: err}
	}
	return &CRS{def: def, sr: sr}, nil
}

// MustParseCRS is ParseCRS for package-level constants; it panics on error.
func MustParseCRS(def string) *CRS {
	c, err := ParseCRS(def)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the definition the CRS was parsed from.
func (c *CRS) String() string {
	if c == nil {
		return ""
	}
	return c.def
}

// Equal reports whether both CRSs come from the same definition, ignoring
// whitespace differences.
func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == o
	}
	return strings.Join(strings.Fields(c.def), "") == strings.Join(strings.Fields(o.def), "")
}

// transformTo returns a coordinate transform from c into dst.
func (c *CRS) transformTo(dst *CRS) (proj.Transformer, error) {
	if c == nil || dst == nil {
		return nil, &GeometryError{Op: "reproject: undefined crs"}
	}
	t, err := c.sr.NewTransform(dst.sr)
	if err != nil {
		return nil, &GeometryError{Op: "reproject", Err: err}
	}
	return t, nil
}

// Reproject returns a copy of the layer in the dst CRS. Layers already in
// dst are returned unchanged.
func (l *Layer) Reproject(dst *CRS) (*Layer, error) {
	if l.CRS == nil {
		return nil, &GeometryError{Op: "reproject: source layer has no crs"}
	}
	if dst == nil {
		return nil, &GeometryError{Op: "reproject: target crs undefined"}
	}
	if l.CRS.Equal(dst) {
		return l, nil
	}

	t, err := l.CRS.transformTo(dst)
	if err != nil {
		return nil, err
	}

	out := &Layer{CRS: dst, Fields: append([]string(nil), l.Fields...)}
	for i, f := range l.Features {
		mp, err := transformMultiPolygon(f.Geometry, t)
		if err != nil {
			return nil, &GeometryError{Op: "reproject feature " + strconv.Itoa(i), Err: err}
		}
		out.Features = append(out.Features, Feature{Properties: f.Properties, Geometry: mp})
	}
	return out, nil
}

func transformMultiPolygon(mp *geom.MultiPolygon, t proj.Transformer) (*geom.MultiPolygon, error) {
	src := mp.FlatCoords()
	stride := mp.Stride()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		x, y, err := t(src[i], src[i+1])
		if err != nil {
			return nil, err
		}
		flat = append(flat, x, y)
	}

	endss := mp.Endss()
	if stride != 2 {
		scaled := make([][]int, len(endss))
		for i, ends := range endss {
			scaled[i] = make([]int, len(ends))
			for j, e := range ends {
				scaled[i][j] = e / stride * 2
			}
		}
		endss = scaled
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss), nil
}
