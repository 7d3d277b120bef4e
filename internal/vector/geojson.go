package vector

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

var wgs84 = MustParseCRS(WGS84)

// WGS84CRS returns the parsed geographic CRS used by GeoJSON.
func WGS84CRS() *CRS {
	return wgs84
}

// DecodeGeoJSON reads a FeatureCollection. Polygon and MultiPolygon
// features are kept; other geometry types are dropped. Property values are
// stringified. The layer CRS is WGS84.
func DecodeGeoJSON(r io.Reader) (*Layer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "vector: read geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "vector: decode geojson")
	}

	layer := &Layer{CRS: wgs84}
	seen := make(map[string]bool)
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		mp := ToMultiPolygon(f.Geometry)
		if mp == nil || mp.NumPolygons() == 0 {
			continue
		}

		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		props := make(map[string]string, len(keys))
		for _, k := range keys {
			props[k] = propertyString(f.Properties[k])
			if !seen[k] {
				seen[k] = true
				layer.Fields = append(layer.Fields, k)
			}
		}
		layer.Features = append(layer.Features, Feature{Properties: props, Geometry: mp})
	}
	return layer, nil
}

// EncodeGeoJSON writes the layer as a FeatureCollection, reprojecting to
// WGS84 first when needed. Fields listed in numeric are emitted as JSON
// numbers, or null when empty.
func EncodeGeoJSON(w io.Writer, l *Layer, numeric ...string) error {
	if l.CRS != nil && !l.CRS.Equal(wgs84) {
		var err error
		if l, err = l.Reproject(wgs84); err != nil {
			return err
		}
	}

	isNumeric := make(map[string]bool, len(numeric))
	for _, n := range numeric {
		isNumeric[n] = true
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(l.Features))}
	for _, f := range l.Features {
		props := make(map[string]interface{}, len(f.Properties))
		for k, v := range f.Properties {
			if isNumeric[k] {
				if v == "" {
					props[k] = nil
					continue
				}
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					props[k] = n
					continue
				}
			}
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: f.Geometry, Properties: props})
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&fc); err != nil {
		return eris.Wrap(err, "vector: encode geojson")
	}
	return nil
}

// ToMultiPolygon normalizes a polygonal geometry to a 2D multipolygon.
// Non-polygonal input returns nil.
func ToMultiPolygon(g geom.T) *geom.MultiPolygon {
	out := geom.NewMultiPolygon(geom.XY)
	switch t := g.(type) {
	case *geom.Polygon:
		_ = out.Push(polygonXY(t))
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			_ = out.Push(polygonXY(t.Polygon(i)))
		}
	case *geom.GeometryCollection:
		for _, sub := range t.Geoms() {
			if mp := ToMultiPolygon(sub); mp != nil {
				for i := 0; i < mp.NumPolygons(); i++ {
					_ = out.Push(mp.Polygon(i))
				}
			}
		}
	default:
		return nil
	}
	return out
}

func polygonXY(p *geom.Polygon) *geom.Polygon {
	var flat []float64
	var ends []int
	for i := 0; i < p.NumLinearRings(); i++ {
		flat = appendRing(flat, closeRing(p.LinearRing(i).Coords()))
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

func propertyString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
