package vector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ReadShapefile reads a polygon shapefile and its sibling .prj. A missing
// .prj leaves the layer CRS nil; callers that need one report it.
func ReadShapefile(shpPath string) (*Layer, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	layer := &Layer{}

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}
	layer.Fields = names

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		mp := shapeToMultiPolygon(shape)
		if mp == nil || mp.NumPolygons() == 0 {
			skipped++
			continue
		}

		props := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			props[name] = strings.TrimSpace(val)
		}
		layer.Features = append(layer.Features, Feature{Properties: props, Geometry: mp})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "vector: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped non-polygon shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	prjPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	if def, err := os.ReadFile(prjPath); err == nil {
		crs, err := ParseCRS(string(def))
		if err != nil {
			return nil, eris.Wrapf(err, "vector: parse %s", prjPath)
		}
		layer.CRS = crs
	} else if !os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "vector: read %s", prjPath)
	}

	return layer, nil
}

// ShapeField describes one attribute column written to a shapefile.
type ShapeField struct {
	Name      string
	Numeric   bool
	Precision uint8
}

// WriteShapefile writes the layer as a polygon shapefile at shpPath, with a
// .prj holding the layer CRS definition. Values of numeric fields are parsed
// from the feature's text attributes.
func WriteShapefile(shpPath string, layer *Layer, fields []ShapeField) error {
	if fields == nil {
		for _, name := range layer.Fields {
			fields = append(fields, ShapeField{Name: name})
		}
	}

	w, err := shp.Create(shpPath, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "vector: create shapefile %s", shpPath)
	}

	dbfFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		name := clampUTF8(f.Name, maxFieldName)
		if f.Numeric {
			dbfFields[i] = shp.FloatField(name, 19, f.Precision)
		} else {
			dbfFields[i] = shp.StringField(name, maxStringSize)
		}
	}
	if err := w.SetFields(dbfFields); err != nil {
		w.Close()
		return eris.Wrap(err, "vector: set shapefile fields")
	}

	for _, feat := range layer.Features {
		poly := multiPolygonToShape(feat.Geometry)
		row := int(w.Write(poly))
		for i, f := range fields {
			var val any = clampUTF8(feat.Properties[f.Name], maxStringSize)
			if f.Numeric {
				n, err := strconv.ParseFloat(feat.Properties[f.Name], 64)
				if err != nil {
					w.Close()
					return eris.Wrapf(err, "vector: field %s is not numeric", f.Name)
				}
				val = n
			}
			if err := w.WriteAttribute(row, i, val); err != nil {
				w.Close()
				return eris.Wrapf(err, "vector: write attribute %s", f.Name)
			}
		}
	}
	w.Close()

	if layer.CRS != nil {
		prjPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
		if err := os.WriteFile(prjPath, []byte(layer.CRS.String()), 0o644); err != nil {
			return eris.Wrapf(err, "vector: write %s", prjPath)
		}
	}
	return nil
}

// dBase limits.
const (
	maxFieldName  = 10
	maxStringSize = 254
)

// clampUTF8 cuts s to at most n bytes without splitting a rune.
func clampUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ShapefileParts lists the sidecar files written alongside shpPath.
func ShapefileParts(shpPath string) []string {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	var parts []string
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		if _, err := os.Stat(base + ext); err == nil {
			parts = append(parts, base+ext)
		}
	}
	return parts
}

func shapeToMultiPolygon(shape shp.Shape) *geom.MultiPolygon {
	switch s := shape.(type) {
	case *shp.Polygon:
		return partsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return partsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonM:
		return partsToMultiPolygon(s.Parts, s.Points)
	default:
		return nil
	}
}

func partsToMultiPolygon(parts []int32, points []shp.Point) *geom.MultiPolygon {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	rings := make([][]geom.Coord, 0, len(parts))
	for i := range parts {
		start := parts[i]
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			zap.L().Debug("vector: skipping malformed polygon ring", zap.Int("part", i))
			continue
		}
		ring := make([]geom.Coord, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, geom.Coord{p.X, p.Y})
		}
		rings = append(rings, ring)
	}
	return AssembleRings(rings)
}

// multiPolygonToShape orients shells clockwise and holes counter-clockwise,
// as the shapefile format requires.
func multiPolygonToShape(mp *geom.MultiPolygon) *shp.Polygon {
	var parts [][]shp.Point
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		for j := 0; j < p.NumLinearRings(); j++ {
			ring := closeRing(p.LinearRing(j).Coords())
			clockwise := signedArea(ring) < 0
			wantClockwise := j == 0
			pts := make([]shp.Point, len(ring))
			for k, c := range ring {
				pts[k] = shp.Point{X: c[0], Y: c[1]}
			}
			if clockwise != wantClockwise {
				for a, b := 0, len(pts)-1; a < b; a, b = a+1, b-1 {
					pts[a], pts[b] = pts[b], pts[a]
				}
			}
			parts = append(parts, pts)
		}
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}
