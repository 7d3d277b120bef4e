package workflow

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultMissing is the FLUXNET missing-value sentinel.
const DefaultMissing = "-9999"

// timestampLayouts are tried in order when parsing timestamps.
var timestampLayouts = []string{
	"2006-01-02 15:04",
	time.RFC3339,
	"200601021504",
	"20060102",
}

// TimeSeriesOptions configures FilterTimeSeries.
type TimeSeriesOptions struct {
	// TimestampColumn defaults to the first column.
	TimestampColumn string
	// Columns lists the value columns to keep; empty keeps all.
	Columns []string
	// From and To bound an optional [From, To) window. Zero values leave
	// that side open.
	From, To time.Time
	// Missing is the sentinel replaced by an empty cell. Defaults to
	// DefaultMissing; values equal to it numerically also match.
	Missing string
}

// FilterTimeSeries selects the timestamp column and the requested value
// columns, clears missing values, applies the time window and drops rows
// whose selected values are all missing.
func FilterTimeSeries(data *Table, opts TimeSeriesOptions) (*Table, error) {
	if data == nil || len(data.Columns) == 0 {
		return nil, eris.New("workflow: dataset has no columns")
	}

	tsCol := 0
	if opts.TimestampColumn != "" {
		if tsCol = data.Index(opts.TimestampColumn); tsCol < 0 {
			return nil, eris.Errorf("workflow: unknown timestamp column %q", opts.TimestampColumn)
		}
	}

	var cols []int
	if len(opts.Columns) == 0 {
		for i := range data.Columns {
			if i != tsCol {
				cols = append(cols, i)
			}
		}
	} else {
		for _, name := range opts.Columns {
			i := data.Index(name)
			if i < 0 {
				return nil, eris.Errorf("workflow: unknown column %q", name)
			}
			cols = append(cols, i)
		}
	}

	isMissing := missingMatcher(opts.Missing)
	windowed := !opts.From.IsZero() || !opts.To.IsZero()

	out := &Table{Columns: []string{data.Columns[tsCol]}}
	for _, i := range cols {
		out.Columns = append(out.Columns, data.Columns[i])
	}

	for r := range data.Rows {
		stamp := data.Cell(r, tsCol)
		if windowed {
			ts, err := ParseTimestamp(stamp)
			if err != nil {
				return nil, eris.Wrapf(err, "workflow: row %d", r+2)
			}
			if !opts.From.IsZero() && ts.Before(opts.From) {
				continue
			}
			if !opts.To.IsZero() && !ts.Before(opts.To) {
				continue
			}
		}

		rec := []string{stamp}
		present := false
		for _, i := range cols {
			v := data.Cell(r, i)
			if v == "" || isMissing(v) {
				v = ""
			} else {
				present = true
			}
			rec = append(rec, v)
		}
		if present {
			out.Rows = append(out.Rows, rec)
		}
	}
	return out, nil
}

// ParseTimestamp parses the timestamp forms found in FLUXNET and similar
// exports.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("workflow: unrecognised timestamp %q", s)
}

func missingMatcher(sentinel string) func(string) bool {
	if sentinel == "" {
		sentinel = DefaultMissing
	}
	want, err := strconv.ParseFloat(sentinel, 64)
	numeric := err == nil
	return func(v string) bool {
		if v == sentinel {
			return true
		}
		if !numeric {
			return false
		}
		got, err := strconv.ParseFloat(v, 64)
		return err == nil && got == want
	}
}
