package vector

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(x0, y0, x1, y1 float64) []geom.Coord {
	return []geom.Coord{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

func squareMP(x0, y0, x1, y1 float64) *geom.MultiPolygon {
	return AssembleRings([][]geom.Coord{square(x0, y0, x1, y1)})
}

func testLayer() *Layer {
	donut := AssembleRings([][]geom.Coord{
		square(0, 0, 10, 10),
		square(4, 4, 6, 6),
	})
	return &Layer{
		CRS:    WGS84CRS(),
		Fields: []string{"NUTS_ID", "NAME"},
		Features: []Feature{
			{Properties: map[string]string{"NUTS_ID": "AT12", "NAME": "Niederösterreich"}, Geometry: donut},
			{Properties: map[string]string{"NUTS_ID": "AT13", "NAME": "Wien"}, Geometry: squareMP(20, 0, 25, 5)},
		},
	}
}

func TestAssembleRings_ShellWithHole(t *testing.T) {
	mp := AssembleRings([][]geom.Coord{
		square(4, 4, 6, 6),
		square(0, 0, 10, 10),
	})
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.InDelta(t, 96.0, Area(mp), 1e-9)
}

func TestAssembleRings_DisjointAndIsland(t *testing.T) {
	mp := AssembleRings([][]geom.Coord{
		square(0, 0, 10, 10),
		square(2, 2, 8, 8),
		square(4, 4, 6, 6), // island inside the hole
		square(20, 20, 21, 21),
	})
	assert.Equal(t, 3, mp.NumPolygons())
	assert.InDelta(t, 100.0-36.0+4.0+1.0, Area(mp), 1e-9)
}

func TestAssembleRings_IgnoresDegenerate(t *testing.T) {
	mp := AssembleRings([][]geom.Coord{{{0, 0}, {1, 1}}})
	assert.Equal(t, 0, mp.NumPolygons())
}

func TestClipRoundTrip(t *testing.T) {
	mp := testLayer().Features[0].Geometry
	back := FromClip(ToClip(mp))
	assert.InDelta(t, Area(mp), Area(back), 1e-9)
	assert.Equal(t, 1, back.NumPolygons())
}

func TestDissolve(t *testing.T) {
	l := testLayer()
	d := l.Dissolve()
	assert.Equal(t, 2, d.NumPolygons())
	assert.InDelta(t, 96.0+25.0, Area(d), 1e-9)
}

func TestDissolve_UnionsOverlaps(t *testing.T) {
	l := &Layer{
		CRS: WGS84CRS(),
		Features: []Feature{
			{Geometry: squareMP(0, 0, 10, 10)},
			{Geometry: squareMP(5, 2, 15, 8)},
			{Geometry: squareMP(5, 0, 15, 10)},
		},
	}
	d := l.Dissolve()
	require.Equal(t, 1, d.NumPolygons())
	assert.Equal(t, 1, d.Polygon(0).NumLinearRings())
	assert.InDelta(t, 150.0, Area(d), 1e-6)
}

func TestArea_HoleWindingIgnored(t *testing.T) {
	cw := func(r []geom.Coord) []geom.Coord {
		out := make([]geom.Coord, len(r))
		for i, c := range r {
			out[len(r)-1-i] = c
		}
		return out
	}
	var flat []float64
	for _, r := range [][]geom.Coord{square(0, 0, 10, 10), square(4, 4, 6, 6)} {
		flat = appendRing(flat, r)
	}
	same := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, same.Push(geom.NewPolygonFlat(geom.XY, flat, []int{10, 20})))
	assert.InDelta(t, 96.0, Area(same), 1e-9)

	flipped := AssembleRings([][]geom.Coord{cw(square(0, 0, 10, 10)), square(4, 4, 6, 6)})
	assert.InDelta(t, 96.0, Area(flipped), 1e-9)
}

func TestAssembleRings_Orientation(t *testing.T) {
	mp := AssembleRings([][]geom.Coord{
		square(4, 4, 6, 6),
		square(0, 0, 10, 10),
	})
	p := mp.Polygon(0)
	assert.Greater(t, signedArea(p.LinearRing(0).Coords()), 0.0)
	assert.Less(t, signedArea(p.LinearRing(1).Coords()), 0.0)
}

func TestValidate(t *testing.T) {
	l := testLayer()
	require.NoError(t, l.Validate())

	l.Features = append(l.Features, Feature{Properties: map[string]string{}})
	err := l.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature 2")
}

func TestShapefileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.shp")
	require.NoError(t, WriteShapefile(path, testLayer(), nil))

	got, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, []string{"NUTS_ID", "NAME"}, got.Fields)
	assert.True(t, got.CRS.Equal(WGS84CRS()))

	assert.Equal(t, "AT12", got.Features[0].Properties["NUTS_ID"])
	assert.Equal(t, "Wien", got.Features[1].Properties["NAME"])
	assert.InDelta(t, 96.0, Area(got.Features[0].Geometry), 1e-9)
	assert.Equal(t, 2, got.Features[0].Geometry.Polygon(0).NumLinearRings())
}

func TestWriteShapefile_NumericField(t *testing.T) {
	l := &Layer{
		Fields: []string{"zone_id", "area_ratio"},
		Features: []Feature{
			{Properties: map[string]string{"zone_id": "AT12", "area_ratio": "0.25"}, Geometry: squareMP(0, 0, 1, 1)},
		},
	}
	path := filepath.Join(t.TempDir(), "c.shp")
	require.NoError(t, WriteShapefile(path, l, []ShapeField{
		{Name: "zone_id"},
		{Name: "area_ratio", Numeric: true, Precision: 15},
	}))

	got, err := ReadShapefile(path)
	require.NoError(t, err)
	assert.Nil(t, got.CRS)
	assert.True(t, strings.HasPrefix(got.Features[0].Properties["area_ratio"], "0.25"))

	l.Features[0].Properties["area_ratio"] = "n/a"
	err = WriteShapefile(filepath.Join(t.TempDir(), "bad.shp"), l, []ShapeField{{Name: "area_ratio", Numeric: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
}

func TestSaveOpenResolve(t *testing.T) {
	dir := t.TempDir()
	_, err := Resolve(dir)
	require.ErrorIs(t, err, ErrNoBoundaries)

	path, err := Save(dir, "boundaries", testLayer(), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "boundaries.shp.zip"), path)

	resolved, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	l, err := Open(resolved)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.NotNil(t, l.CRS)
}

func TestResolve_PrefersZippedShapefile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "boundaries.geojson"), []byte(`{}`), 0o644))
	_, err := Save(dir, "boundaries", testLayer(), nil)
	require.NoError(t, err)

	p, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, "boundaries.shp.zip", filepath.Base(p))
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open("boundaries.kml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

const siteGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "properties": {"deimsid": "https://deims.org/abc", "area": 12.5, "active": true},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature",
     "properties": {"name": "marker"},
     "geometry": {"type": "Point", "coordinates": [1,1]}}
  ]
}`

func TestDecodeGeoJSON(t *testing.T) {
	l, err := DecodeGeoJSON(strings.NewReader(siteGeoJSON))
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	assert.True(t, l.CRS.Equal(WGS84CRS()))
	assert.Equal(t, []string{"active", "area", "deimsid"}, l.Fields)

	props := l.Features[0].Properties
	assert.Equal(t, "12.5", props["area"])
	assert.Equal(t, "true", props["active"])
	assert.InDelta(t, 4.0, Area(l.Features[0].Geometry), 1e-9)
}

func TestDecodeGeoJSON_Invalid(t *testing.T) {
	_, err := DecodeGeoJSON(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestEncodeGeoJSON_NumericFields(t *testing.T) {
	l := &Layer{
		CRS:    WGS84CRS(),
		Fields: []string{"zone_id", "area_ratio"},
		Features: []Feature{
			{Properties: map[string]string{"zone_id": "AT12", "area_ratio": "0.5"}, Geometry: squareMP(0, 0, 1, 1)},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeGeoJSON(&buf, l, "area_ratio"))

	var out struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "FeatureCollection", out.Type)
	require.Len(t, out.Features, 1)
	assert.Equal(t, 0.5, out.Features[0].Properties["area_ratio"])
	assert.Equal(t, "AT12", out.Features[0].Properties["zone_id"])

	back, err := DecodeGeoJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, back.Len())
}

func TestParseCRS(t *testing.T) {
	_, err := ParseCRS("  ")
	var ge *GeometryError
	require.ErrorAs(t, err, &ge)

	a, err := ParseCRS(WGS84)
	require.NoError(t, err)
	b, err := ParseCRS(" " + WGS84 + "\n")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}

func TestReproject(t *testing.T) {
	l := testLayer()

	same, err := l.Reproject(WGS84CRS())
	require.NoError(t, err)
	assert.Same(t, l, same)

	merc, err := ParseCRS("+proj=merc +ellps=WGS84 +datum=WGS84 +units=m +no_defs")
	require.NoError(t, err)
	out, err := l.Reproject(merc)
	require.NoError(t, err)
	assert.Same(t, merc, out.CRS)

	// One degree of longitude on the equator.
	first := out.Features[1].Geometry.FlatCoords()
	assert.InDelta(t, 20*111319.49, first[0], 5.0)
	assert.InDelta(t, 0.0, first[1], 1e-6)

	l.CRS = nil
	_, err = l.Reproject(merc)
	var ge *GeometryError
	require.ErrorAs(t, err, &ge)
}

func TestEWKBRoundTrip(t *testing.T) {
	mp := testLayer().Features[0].Geometry
	data, err := EncodeEWKB(mp, 4326)
	require.NoError(t, err)

	back, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.InDelta(t, Area(mp), Area(back), 1e-9)

	empty, err := DecodeEWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestWriteShapefile_ClampsDBaseLimits(t *testing.T) {
	long := strings.Repeat("ä", 200)
	l := &Layer{
		CRS:    WGS84CRS(),
		Fields: []string{"description"},
		Features: []Feature{{
			Properties: map[string]string{"description": long},
			Geometry:   squareMP(0, 0, 1, 1),
		}},
	}
	path := filepath.Join(t.TempDir(), "long.shp")
	require.NoError(t, WriteShapefile(path, l, nil))

	back, err := ReadShapefile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"descriptio"}, back.Fields)
	got := back.Features[0].Properties["descriptio"]
	assert.Len(t, got, 254)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestClampUTF8(t *testing.T) {
	assert.Equal(t, "abc", clampUTF8("abc", 10))
	assert.Equal(t, "ab", clampUTF8("abcd", 2))
	assert.Equal(t, "a", clampUTF8("aé", 2))
}
