package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/composite"
	"github.com/sells-group/ltser-cli/internal/overlay"
	"github.com/sells-group/ltser-cli/internal/store"
)

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "Build and inspect site/zone composites",
}

// -- composite build --

var compositeBuildCmd = &cobra.Command{
	Use:   "build <site> <zone>",
	Short: "Decompose a site against one zone layer and persist the result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cat, _, err := loadCatalog("catalog")
		if err != nil {
			return eris.Wrap(err, "composite build")
		}
		site, zone, err := resolvePair(cat, args[0], args[1])
		if err != nil {
			return err
		}

		ledger := openLedger(ctx)
		defer ledger.Close() //nolint:errcheck

		var opts []composite.Option
		if path, _ := cmd.Flags().GetString("debug"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrap(err, "composite build: create debug file")
			}
			defer f.Close() //nolint:errcheck
			opts = append(opts, composite.WithDebug(f))
		}

		comp, err := composite.NewBuilder(ledger, opts...).BuildComposite(ctx, site, zone)
		if err != nil {
			return eris.Wrap(err, "composite build")
		}
		if err := cat.SetComposite(site.Key, zone.Key, comp); err != nil {
			return err
		}
		return renderComposite(os.Stdout, outputFormat, comp)
	},
}

// -- composite show --

var compositeShowCmd = &cobra.Command{
	Use:   "show <site> <zone>",
	Short: "Print a persisted composite",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, _, err := loadCatalog("catalog")
		if err != nil {
			return eris.Wrap(err, "composite show")
		}
		site, zone, err := resolvePair(cat, args[0], args[1])
		if err != nil {
			return err
		}
		comp, ok := site.Composites[zone.Key]
		if !ok {
			return eris.Errorf("composite show: no composite of %s against %s; run composite build first", site.Key, zone.Key)
		}

		if geo, _ := cmd.Flags().GetBool("geojson"); geo {
			return comp.EncodeGeoJSON(os.Stdout)
		}
		return renderComposite(os.Stdout, outputFormat, comp)
	},
}

// compositeRow is the printable form of an overlay row.
type compositeRow struct {
	ZoneID    string  `json:"zone_id" yaml:"zone_id"`
	ZoneName  string  `json:"zone_name" yaml:"zone_name"`
	AreaRatio float64 `json:"area_ratio" yaml:"area_ratio"`
}

type compositeView struct {
	Summary overlay.Summary `json:"summary" yaml:"summary"`
	Rows    []compositeRow  `json:"rows" yaml:"rows"`
}

func renderComposite(w io.Writer, format string, comp *overlay.Composite) error {
	view := compositeView{Summary: comp.Summarize(), Rows: make([]compositeRow, 0, comp.Len())}
	for _, r := range comp.Rows {
		view.Rows = append(view.Rows, compositeRow{ZoneID: r.ZoneID, ZoneName: r.ZoneName, AreaRatio: r.AreaRatio})
	}
	return render(w, format, view, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ZONE_ID\tZONE_NAME\tAREA_RATIO")
		for _, r := range view.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%.6f\n", r.ZoneID, r.ZoneName, r.AreaRatio)
		}
		fmt.Fprintf(tw, "\n%d rows, %d mostly inside\n", view.Summary.Rows, view.Summary.MostlyInside)
	})
}

// -- composite history --

var compositeHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded builds and provisions from the ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ledger, err := openLedgerStrict(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		site, _ := cmd.Flags().GetString("site")
		zone, _ := cmd.Flags().GetString("zone")
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")

		builds, err := ledger.ListBuilds(ctx, store.BuildFilter{
			Kind:  store.Kind(kind),
			Site:  site,
			Zone:  zone,
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "composite history")
		}
		if len(builds) == 0 && (outputFormat == "table" || outputFormat == "") {
			fmt.Fprintln(os.Stderr, "No builds found.")
			return nil
		}
		return renderBuilds(os.Stdout, outputFormat, builds)
	},
}

func renderBuilds(w io.Writer, format string, builds []store.Build) error {
	return render(w, format, builds, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "CREATED\tKIND\tSITE\tZONE\tROWS\tSTATUS\tDURATION\tERROR")
		for _, b := range builds {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%dms\t%s\n",
				b.CreatedAt.Format("2006-01-02 15:04:05"), b.Kind, b.Site, b.Zone, b.Rows, b.Status, b.DurationMS, truncate(b.Error, 60))
		}
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// resolvePair looks up a site by key and a zone by its key string.
func resolvePair(cat *catalog.Catalog, siteKey, zoneKey string) (*catalog.Site, *catalog.Zone, error) {
	site, ok := cat.Site(siteKey)
	if !ok {
		return nil, nil, eris.Errorf("unknown site %q", siteKey)
	}
	zone, ok := cat.ZoneByKey(zoneKey)
	if !ok {
		return nil, nil, eris.Errorf("unknown zone %q", zoneKey)
	}
	return site, zone, nil
}

func init() {
	compositeBuildCmd.Flags().String("debug", "", "write intermediate fragments as GeoJSON to this file")
	compositeShowCmd.Flags().Bool("geojson", false, "print the composite as a GeoJSON FeatureCollection")

	compositeHistoryCmd.Flags().String("site", "", "filter by site key")
	compositeHistoryCmd.Flags().String("zone", "", "filter by zone key")
	compositeHistoryCmd.Flags().String("kind", "", "filter by kind (composite, provision)")
	compositeHistoryCmd.Flags().Int("limit", store.DefaultListLimit, "max entries to show")

	compositeCmd.AddCommand(compositeBuildCmd)
	compositeCmd.AddCommand(compositeShowCmd)
	compositeCmd.AddCommand(compositeHistoryCmd)
	rootCmd.AddCommand(compositeCmd)
}
