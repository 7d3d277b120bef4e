package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ltser-cli/internal/overlay"
	"github.com/sells-group/ltser-cli/internal/workflow"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <site> <zone>",
	Short: "Join a per-zone dataset onto a site composite",
	Long:  "Left-joins the dataset (CSV, TSV or XLSX) on its first column against the composite's zone_id. Writes CSV by default or a GeoJSON FeatureCollection with --geojson.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, _, err := loadCatalog("catalog")
		if err != nil {
			return eris.Wrap(err, "aggregate")
		}
		site, zone, err := resolvePair(cat, args[0], args[1])
		if err != nil {
			return err
		}
		comp, ok := site.Composites[zone.Key]
		if !ok {
			return eris.Errorf("aggregate: no composite of %s against %s; run composite build first", site.Key, zone.Key)
		}

		dataPath, _ := cmd.Flags().GetString("data")
		sheet, _ := cmd.Flags().GetString("sheet")
		data, err := workflow.ReadTable(dataPath, workflow.XLSXOptions{SheetName: sheet})
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		geo, _ := cmd.Flags().GetBool("geojson")
		return withOutput(out, func(w io.Writer) error {
			return runAggregate(w, comp, data, geo)
		})
	},
}

func runAggregate(w io.Writer, comp *overlay.Composite, data *workflow.Table, geo bool) error {
	if geo {
		return workflow.AggregateGeoJSON(w, comp, data)
	}
	joined, err := workflow.AggregateTabular(comp, data)
	if err != nil {
		return err
	}
	return joined.WriteCSV(w)
}

// withOutput runs fn against the file at path, or stdout when path is empty.
func withOutput(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func init() {
	aggregateCmd.Flags().String("data", "", "dataset file (.csv, .tsv, .txt or .xlsx)")
	aggregateCmd.Flags().String("sheet", "", "XLSX sheet name (default first sheet)")
	aggregateCmd.Flags().String("out", "", "output file (default stdout)")
	aggregateCmd.Flags().Bool("geojson", false, "write GeoJSON instead of CSV")
	_ = aggregateCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(aggregateCmd)
}
