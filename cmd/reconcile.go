package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ltser-cli/internal/composite"
)

var reconcileDryRun bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Build every missing composite in the catalog",
	Long:  "For each site, builds the composites against every global zone and, where the site declares national zones, every zone of its national group. Composites already on disk are left alone.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cat, _, err := loadCatalog("catalog")
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		ledger := openLedger(ctx)
		defer ledger.Close() //nolint:errcheck
		builder := composite.NewBuilder(ledger)

		if reconcileDryRun {
			return renderReport(os.Stdout, outputFormat, builder.Missing(cat), "missing")
		}

		report, err := builder.Reconcile(ctx, cat)
		if rerr := renderReport(os.Stdout, outputFormat, report, "built"); rerr != nil {
			return rerr
		}
		return err
	},
}

func renderReport(w io.Writer, format string, report *composite.Report, verb string) error {
	if report == nil {
		report = &composite.Report{}
	}
	return render(w, format, report, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "SITE\tZONES")
		for _, s := range report.Sites {
			fmt.Fprintf(tw, "%s\t%s\n", s.Site, strings.Join(s.Zones, ", "))
		}
		fmt.Fprintf(tw, "\n%d composites %s\n", report.Count(), verb)
	})
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "list missing composites without building them")
	rootCmd.AddCommand(reconcileCmd)
}
