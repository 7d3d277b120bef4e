package vector

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB converts a multipolygon to little-endian EWKB tagged with srid.
// A zero srid writes plain WKB.
func EncodeEWKB(mp *geom.MultiPolygon, srid int) ([]byte, error) {
	if mp == nil {
		return nil, nil
	}
	g := geom.NewMultiPolygonFlat(geom.XY, mp.FlatCoords(), mp.Endss())
	if srid != 0 {
		g.SetSRID(srid)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode WKB")
	}
	return data, nil
}

// DecodeEWKB parses EWKB produced by EncodeEWKB (or PostGIS) back into a
// 2D multipolygon.
func DecodeEWKB(data []byte) (*geom.MultiPolygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "vector: decode WKB")
	}
	mp := ToMultiPolygon(g)
	if mp == nil {
		return nil, eris.Errorf("vector: WKB holds %T, want polygonal geometry", g)
	}
	return mp, nil
}
