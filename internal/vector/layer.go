// Package vector holds polygon layers (features with text attributes), their
// coordinate reference systems, and shapefile/GeoJSON encodings.
package vector

import (
	"math"
	"sort"

	cgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Feature is one row of a layer: text attributes plus a polygon geometry.
type Feature struct {
	Properties map[string]string
	Geometry   *geom.MultiPolygon
}

// Layer is a polygon vector layer in a single CRS.
type Layer struct {
	CRS      *CRS
	Fields   []string
	Features []Feature
}

// Len returns the number of features.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Features)
}

// HasField reports whether name is one of the layer's attribute columns.
func (l *Layer) HasField(name string) bool {
	for _, f := range l.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Dissolve unions every feature's polygons into one multipolygon, so
// overlapping features or parts count once.
func (l *Layer) Dissolve() *geom.MultiPolygon {
	var parts []*geom.Polygon
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		for i := 0; i < f.Geometry.NumPolygons(); i++ {
			parts = append(parts, f.Geometry.Polygon(i))
		}
	}
	if len(parts) == 0 {
		return geom.NewMultiPolygon(geom.XY)
	}

	var acc cgeom.Polygon
	for _, p := range parts {
		pc := polygonToClip(p)
		if len(pc) == 0 {
			continue
		}
		if acc == nil {
			acc = pc
			continue
		}
		acc = flattenClip(acc.Union(pc))
	}
	return FromClip(acc)
}

// Area returns the planar area of mp in its CRS units: each polygon's shell
// less its holes, whatever their winding.
func Area(mp *geom.MultiPolygon) float64 {
	if mp == nil {
		return 0
	}
	var a float64
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		for j := 0; j < p.NumLinearRings(); j++ {
			ra := math.Abs(signedArea(p.LinearRing(j).Coords()))
			if j == 0 {
				a += ra
			} else {
				a -= ra
			}
		}
	}
	return a
}

// ToClip converts mp into the ring soup used by the clipping engine. All
// shells and holes become paths of a single polygon; the engine fills by
// even-odd, so the polygons of mp must not overlap (see Dissolve).
func ToClip(mp *geom.MultiPolygon) cgeom.Polygon {
	if mp == nil {
		return nil
	}
	var out cgeom.Polygon
	for i := 0; i < mp.NumPolygons(); i++ {
		out = append(out, polygonToClip(mp.Polygon(i))...)
	}
	return out
}

func polygonToClip(p *geom.Polygon) cgeom.Polygon {
	var out cgeom.Polygon
	for j := 0; j < p.NumLinearRings(); j++ {
		if path := ringToPath(p.LinearRing(j)); len(path) >= 3 {
			out = append(out, path)
		}
	}
	return out
}

func flattenClip(p cgeom.Polygonal) cgeom.Polygon {
	var out cgeom.Polygon
	for _, poly := range p.Polygons() {
		out = append(out, poly...)
	}
	return out
}

// FromClip rebuilds a multipolygon from clipping engine output, sorting the
// paths into shells and holes by containment.
func FromClip(p cgeom.Polygon) *geom.MultiPolygon {
	rings := make([][]geom.Coord, 0, len(p))
	for _, path := range p {
		if len(path) < 3 {
			continue
		}
		ring := make([]geom.Coord, 0, len(path)+1)
		for _, pt := range path {
			ring = append(ring, geom.Coord{pt.X, pt.Y})
		}
		rings = append(rings, ring)
	}
	return AssembleRings(rings)
}

func ringToPath(r *geom.LinearRing) cgeom.Path {
	n := r.NumCoords()
	if n == 0 {
		return nil
	}
	first, last := r.Coord(0), r.Coord(n-1)
	if n > 1 && first[0] == last[0] && first[1] == last[1] {
		n--
	}
	path := make(cgeom.Path, 0, n)
	for i := 0; i < n; i++ {
		c := r.Coord(i)
		path = append(path, cgeom.Point{X: c[0], Y: c[1]})
	}
	return path
}

// AssembleRings groups unordered rings into polygons. A ring nested inside
// an even number of other rings is a shell; an odd number makes it a hole
// of the smallest shell containing it. Input orientation is ignored, so
// shapefile (clockwise shells) and clipper output are handled alike; output
// shells wind counter-clockwise and holes clockwise.
func AssembleRings(rings [][]geom.Coord) *geom.MultiPolygon {
	type ringInfo struct {
		coords []geom.Coord
		area   float64
		depth  int
		parent int
	}

	infos := make([]ringInfo, 0, len(rings))
	for _, r := range rings {
		r = closeRing(r)
		if len(r) < 4 {
			continue
		}
		infos = append(infos, ringInfo{coords: r, area: math.Abs(signedArea(r)), parent: -1})
	}

	for i := range infos {
		probe := infos[i].coords[0]
		best := -1
		for j := range infos {
			if i == j || infos[j].area <= infos[i].area {
				continue
			}
			if pointInRing(probe, infos[j].coords) {
				infos[i].depth++
				if best == -1 || infos[j].area < infos[best].area {
					best = j
				}
			}
		}
		infos[i].parent = best
	}

	// Shells in input order, holes attached to their nearest enclosing shell.
	holes := make(map[int][]int)
	var shells []int
	for i, info := range infos {
		if info.depth%2 == 0 {
			shells = append(shells, i)
			continue
		}
		if info.parent >= 0 {
			holes[info.parent] = append(holes[info.parent], i)
		}
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, s := range shells {
		var flat []float64
		var ends []int
		flat = appendRing(flat, orient(infos[s].coords, true))
		ends = append(ends, len(flat))
		h := holes[s]
		sort.Ints(h)
		for _, hi := range h {
			flat = appendRing(flat, orient(infos[hi].coords, false))
			ends = append(ends, len(flat))
		}
		_ = mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends))
	}
	return mp
}

// Validate checks every feature carries a non-empty polygon geometry.
func (l *Layer) Validate() error {
	if l == nil {
		return eris.New("vector: nil layer")
	}
	for i, f := range l.Features {
		if f.Geometry == nil || f.Geometry.NumPolygons() == 0 {
			return eris.Errorf("vector: feature %d has no polygon geometry", i)
		}
	}
	return nil
}

func appendRing(flat []float64, ring []geom.Coord) []float64 {
	for _, c := range ring {
		flat = append(flat, c[0], c[1])
	}
	return flat
}

func closeRing(r []geom.Coord) []geom.Coord {
	if len(r) == 0 {
		return r
	}
	first, last := r[0], r[len(r)-1]
	if first[0] != last[0] || first[1] != last[1] {
		r = append(r[:len(r):len(r)], geom.Coord{first[0], first[1]})
	}
	return r
}

// orient returns r wound counter-clockwise when ccw is set, clockwise
// otherwise.
func orient(r []geom.Coord, ccw bool) []geom.Coord {
	if (signedArea(r) > 0) == ccw {
		return r
	}
	out := make([]geom.Coord, len(r))
	for i, c := range r {
		out[len(r)-1-i] = c
	}
	return out
}

// signedArea is the shoelace sum; negative for clockwise rings.
func signedArea(r []geom.Coord) float64 {
	var a float64
	for i := 0; i+1 < len(r); i++ {
		a += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return a / 2
}

func pointInRing(p geom.Coord, r []geom.Coord) bool {
	inside := false
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		xi, yi := r[i][0], r[i][1]
		xj, yj := r[j][0], r[j][1]
		if (yi > p[1]) != (yj > p[1]) && p[0] < (xj-xi)*(p[1]-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
