package workflow

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ltser-cli/internal/overlay"
	"github.com/sells-group/ltser-cli/internal/vector"
)

// joinSuffix marks dataset columns whose name collides with a composite
// column.
const joinSuffix = "_y"

type joined struct {
	row    overlay.Row
	values []string
}

// AggregateTabular left-joins composite rows with a dataset whose first
// column holds zone ids. The result has zone_id, zone_name and area_ratio
// followed by the remaining dataset columns. Zones without a dataset row
// keep empty cells; a zone matching several dataset rows appears once per
// match.
func AggregateTabular(comp *overlay.Composite, data *Table) (*Table, error) {
	cols, rows, err := join(comp, data)
	if err != nil {
		return nil, err
	}
	out := &Table{Columns: append([]string{overlay.ColZoneID, overlay.ColZoneName, overlay.ColAreaRatio}, cols...)}
	for _, j := range rows {
		rec := []string{j.row.ZoneID, j.row.ZoneName, strconv.FormatFloat(j.row.AreaRatio, 'f', -1, 64)}
		out.Rows = append(out.Rows, append(rec, j.values...))
	}
	return out, nil
}

// AggregateGeoJSON writes the same join as AggregateTabular as a WGS84
// FeatureCollection with the fragment geometry of each row. area_ratio and
// dataset columns holding only numbers are written as JSON numbers.
func AggregateGeoJSON(w io.Writer, comp *overlay.Composite, data *Table) error {
	cols, rows, err := join(comp, data)
	if err != nil {
		return err
	}

	layer := &vector.Layer{
		CRS:    comp.CRS,
		Fields: append([]string{overlay.ColZoneID, overlay.ColZoneName, overlay.ColAreaRatio}, cols...),
	}
	for _, j := range rows {
		props := map[string]string{
			overlay.ColZoneID:    j.row.ZoneID,
			overlay.ColZoneName:  j.row.ZoneName,
			overlay.ColAreaRatio: strconv.FormatFloat(j.row.AreaRatio, 'f', -1, 64),
		}
		for i, c := range cols {
			props[c] = j.values[i]
		}
		layer.Features = append(layer.Features, vector.Feature{Properties: props, Geometry: j.row.Geometry})
	}

	numeric := []string{overlay.ColAreaRatio}
	for i, c := range cols {
		if numericColumn(rows, i) {
			numeric = append(numeric, c)
		}
	}
	return vector.EncodeGeoJSON(w, layer, numeric...)
}

func join(comp *overlay.Composite, data *Table) ([]string, []joined, error) {
	if comp == nil {
		return nil, nil, eris.New("workflow: no composite")
	}
	if data == nil || len(data.Columns) == 0 {
		return nil, nil, eris.New("workflow: dataset has no columns")
	}

	// The key column is dropped; zone_id comes from the composite.
	reserved := map[string]bool{overlay.ColZoneID: true, overlay.ColZoneName: true, overlay.ColAreaRatio: true}
	cols := make([]string, 0, len(data.Columns)-1)
	for _, c := range data.Columns[1:] {
		if reserved[c] {
			c += joinSuffix
		}
		cols = append(cols, c)
	}

	byKey := make(map[string][]int)
	for r := range data.Rows {
		k := data.Cell(r, 0)
		byKey[k] = append(byKey[k], r)
	}

	var out []joined
	for _, row := range comp.Rows {
		matches := byKey[row.ZoneID]
		if len(matches) == 0 {
			out = append(out, joined{row: row, values: make([]string, len(cols))})
			continue
		}
		for _, r := range matches {
			vals := make([]string, len(cols))
			for i := range cols {
				vals[i] = data.Cell(r, i+1)
			}
			out = append(out, joined{row: row, values: vals})
		}
	}
	return cols, out, nil
}

// numericColumn reports whether every non-empty value of column i parses as
// a number and at least one value is present.
func numericColumn(rows []joined, i int) bool {
	seen := false
	for _, j := range rows {
		v := j.values[i]
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}
