// Package overlay decomposes a site boundary into the administrative zones
// it intersects, attributing each clipped fragment its share of the
// original zone area.
package overlay

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/ltser-cli/internal/vector"
)

// Composite column names, in persisted order. Geometry is implicit.
const (
	ColZoneID    = "zone_id"
	ColZoneName  = "zone_name"
	ColAreaRatio = "area_ratio"
)

// Row is one clipped zone fragment.
type Row struct {
	ZoneID    string
	ZoneName  string
	Geometry  *geom.MultiPolygon
	AreaRatio float64
}

// Composite is the decomposition of one site against one zone layer. Its
// CRS is the zone layer's.
type Composite struct {
	CRS  *vector.CRS
	Rows []Row
}

// Len returns the number of rows.
func (c *Composite) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Rows)
}

// Row returns the first row for zone id.
func (c *Composite) Row(zoneID string) (Row, bool) {
	for _, r := range c.Rows {
		if r.ZoneID == zoneID {
			return r, true
		}
	}
	return Row{}, false
}

// Layer converts the composite to a vector layer with the three attribute
// columns.
func (c *Composite) Layer() *vector.Layer {
	l := &vector.Layer{
		CRS:      c.CRS,
		Fields:   []string{ColZoneID, ColZoneName, ColAreaRatio},
		Features: make([]vector.Feature, 0, len(c.Rows)),
	}
	for _, r := range c.Rows {
		l.Features = append(l.Features, vector.Feature{
			Properties: map[string]string{
				ColZoneID:    r.ZoneID,
				ColZoneName:  r.ZoneName,
				ColAreaRatio: strconv.FormatFloat(r.AreaRatio, 'f', -1, 64),
			},
			Geometry: r.Geometry,
		})
	}
	return l
}

// FromLayer reads a composite back from a persisted layer.
func FromLayer(l *vector.Layer) (*Composite, error) {
	for _, f := range []string{ColZoneID, ColZoneName, ColAreaRatio} {
		if !l.HasField(f) {
			return nil, eris.Errorf("overlay: composite layer missing column %s", f)
		}
	}

	c := &Composite{CRS: l.CRS, Rows: make([]Row, 0, len(l.Features))}
	for i, f := range l.Features {
		ratio, err := strconv.ParseFloat(f.Properties[ColAreaRatio], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "overlay: row %d area_ratio", i)
		}
		c.Rows = append(c.Rows, Row{
			ZoneID:    f.Properties[ColZoneID],
			ZoneName:  f.Properties[ColZoneName],
			Geometry:  f.Geometry,
			AreaRatio: ratio,
		})
	}
	return c, nil
}

// EncodeGeoJSON writes the composite as a WGS84 FeatureCollection.
func (c *Composite) EncodeGeoJSON(w io.Writer) error {
	return vector.EncodeGeoJSON(w, c.Layer(), ColAreaRatio)
}

// Summary describes a composite for listings.
type Summary struct {
	Rows         int     `json:"rows" yaml:"rows"`
	FragmentArea float64 `json:"fragment_area" yaml:"fragment_area"`
	MinRatio     float64 `json:"min_ratio" yaml:"min_ratio"`
	MaxRatio     float64 `json:"max_ratio" yaml:"max_ratio"`
	MostlyInside int     `json:"mostly_inside" yaml:"mostly_inside"`
}

// MostlyInsideRatio is the area_ratio above which a zone counts as mostly
// inside the site.
const MostlyInsideRatio = 0.5

// Summarize computes the summary. Fragment area is in CRS units.
func (c *Composite) Summarize() Summary {
	s := Summary{Rows: c.Len()}
	if s.Rows == 0 {
		return s
	}

	ratios := make([]float64, len(c.Rows))
	areas := make([]float64, len(c.Rows))
	for i, r := range c.Rows {
		ratios[i] = r.AreaRatio
		areas[i] = vector.Area(r.Geometry)
		if r.AreaRatio > MostlyInsideRatio {
			s.MostlyInside++
		}
	}
	s.FragmentArea = floats.Sum(areas)
	s.MinRatio = floats.Min(ratios)
	s.MaxRatio = floats.Max(ratios)
	return s
}
