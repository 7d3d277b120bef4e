package overlay

import (
	"io"
	"sort"

	cgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/vector"
)

// ErrDuplicateZoneID marks a zone layer whose id column is not unique.
// Decompose joins fragments back to their source polygon by id, so
// duplicates multiply rows.
var ErrDuplicateZoneID = eris.New("overlay: duplicate zone id")

// Option configures Decompose.
type Option func(*options)

type options struct {
	debug io.Writer
}

// WithDebug writes a GeoJSON FeatureCollection of the unclipped zone
// polygons, the clipped fragments and the site outline to w. The returned
// composite is unaffected.
func WithDebug(w io.Writer) Option {
	return func(o *options) {
		o.debug = w
	}
}

type candidate struct {
	cgeom.Polygon
	idx int
}

type fragment struct {
	id, name string
	shape    *geom.MultiPolygon
	area     float64
}

// Decompose intersects the site boundary with every zone polygon. The site
// is reprojected into the zone layer's CRS, which becomes the composite's.
// Each fragment's area_ratio is its area over the area of the original zone
// polygon carrying the same id. Zone ids must be unique (see CheckUniqueIDs);
// duplicates yield one row per fragment and original pair.
func Decompose(site, zones *vector.Layer, idField, nameField string, opts ...Option) (*Composite, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if zones == nil || zones.CRS == nil {
		return nil, &vector.GeometryError{Op: "decompose: zone layer has no crs"}
	}
	if site.Len() == 0 {
		return nil, &vector.GeometryError{Op: "decompose: empty site boundary"}
	}
	for _, f := range []string{idField, nameField} {
		if !zones.HasField(f) {
			return nil, eris.Errorf("overlay: zone layer has no column %q", f)
		}
	}

	projected, err := site.Reproject(zones.CRS)
	if err != nil {
		return nil, err
	}
	siteMP := projected.Dissolve()
	if siteMP.NumPolygons() == 0 {
		return nil, &vector.GeometryError{Op: "decompose: site boundary has no polygons"}
	}
	siteClip := vector.ToClip(siteMP)

	tree := rtree.NewTree(25, 50)
	originals := make(map[string][]float64)
	for i, f := range zones.Features {
		if f.Geometry == nil || f.Geometry.NumPolygons() == 0 {
			continue
		}
		id := f.Properties[idField]
		originals[id] = append(originals[id], vector.Area(f.Geometry))
		tree.Insert(&candidate{Polygon: vector.ToClip(f.Geometry), idx: i})
	}

	hits := tree.SearchIntersect(siteClip.Bounds())
	cands := make([]*candidate, 0, len(hits))
	for _, h := range hits {
		cands = append(cands, h.(*candidate))
	}
	sort.Slice(cands, func(a, b int) bool { return cands[a].idx < cands[b].idx })

	var frags []fragment
	for _, c := range cands {
		isect := siteClip.Intersection(c.Polygon)
		if isect == nil {
			continue
		}
		mp := fromPolygonal(isect)
		area := vector.Area(mp)
		if area <= 0 {
			continue
		}
		props := zones.Features[c.idx].Properties
		frags = append(frags, fragment{id: props[idField], name: props[nameField], shape: mp, area: area})
	}

	comp := &Composite{CRS: zones.CRS, Rows: make([]Row, 0, len(frags))}
	for _, fr := range frags {
		for _, orig := range originals[fr.id] {
			if orig <= 0 {
				continue
			}
			comp.Rows = append(comp.Rows, Row{
				ZoneID:    fr.id,
				ZoneName:  fr.name,
				Geometry:  fr.shape,
				AreaRatio: fr.area / orig,
			})
		}
	}

	if o.debug != nil {
		if err := writeDebug(o.debug, zones, idField, nameField, frags, siteMP); err != nil {
			zap.L().Warn("overlay: debug output failed", zap.Error(err))
		}
	}

	return comp, nil
}

// CheckUniqueIDs returns ErrDuplicateZoneID if any value of idField occurs
// more than once in the layer.
func CheckUniqueIDs(zones *vector.Layer, idField string) error {
	counts := make(map[string]int, zones.Len())
	for _, f := range zones.Features {
		counts[f.Properties[idField]]++
	}

	var dups []string
	for id, n := range counts {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	if len(dups) == 0 {
		return nil
	}
	sort.Strings(dups)
	return eris.Wrapf(ErrDuplicateZoneID, "%s=%q occurs %d times (%d duplicated ids)",
		idField, dups[0], counts[dups[0]], len(dups))
}

func fromPolygonal(p cgeom.Polygonal) *geom.MultiPolygon {
	var paths cgeom.Polygon
	for _, poly := range p.Polygons() {
		paths = append(paths, poly...)
	}
	return vector.FromClip(paths)
}

func writeDebug(w io.Writer, zones *vector.Layer, idField, nameField string, frags []fragment, site *geom.MultiPolygon) error {
	l := &vector.Layer{CRS: zones.CRS, Fields: []string{"layer", ColZoneID, ColZoneName}}

	hit := make(map[string]bool, len(frags))
	for _, fr := range frags {
		hit[fr.id] = true
	}
	for _, f := range zones.Features {
		if !hit[f.Properties[idField]] {
			continue
		}
		l.Features = append(l.Features, vector.Feature{
			Properties: map[string]string{"layer": "zone", ColZoneID: f.Properties[idField], ColZoneName: f.Properties[nameField]},
			Geometry:   f.Geometry,
		})
	}
	for _, fr := range frags {
		l.Features = append(l.Features, vector.Feature{
			Properties: map[string]string{"layer": "fragment", ColZoneID: fr.id, ColZoneName: fr.name},
			Geometry:   fr.shape,
		})
	}
	l.Features = append(l.Features, vector.Feature{
		Properties: map[string]string{"layer": "site"},
		Geometry:   site,
	})

	return vector.EncodeGeoJSON(w, l)
}
