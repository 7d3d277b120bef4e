package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ltser-cli/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the zone and site catalog",
}

// -- catalog list --

// catalogEntry is one row of `catalog list`.
type catalogEntry struct {
	Kind       string   `json:"kind" yaml:"kind"`
	Key        string   `json:"key" yaml:"key"`
	Label      string   `json:"label" yaml:"label"`
	Detail     string   `json:"detail,omitempty" yaml:"detail,omitempty"`
	Composites []string `json:"composites,omitempty" yaml:"composites,omitempty"`
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded zones and sites",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, _, err := loadCatalog("catalog")
		if err != nil {
			return eris.Wrap(err, "catalog list")
		}
		return renderCatalog(os.Stdout, outputFormat, cat)
	},
}

func catalogEntries(cat *catalog.Catalog) []catalogEntry {
	var out []catalogEntry
	for _, z := range cat.Zones() {
		detail := string(z.Key.Family)
		if !z.Global() {
			detail += " (" + z.NatZoneGroup + ")"
		}
		out = append(out, catalogEntry{Kind: "zone", Key: z.Key.String(), Label: z.Metadata.DisplayName, Detail: detail})
	}
	for _, s := range cat.Sites() {
		e := catalogEntry{Kind: "site", Key: s.Key, Label: s.Metadata.DisplayName, Detail: s.Metadata.ID.String()}
		for _, k := range s.CompositeKeys() {
			e.Composites = append(e.Composites, k.String())
		}
		out = append(out, e)
	}
	return out
}

func renderCatalog(w io.Writer, format string, cat *catalog.Catalog) error {
	entries := catalogEntries(cat)
	return render(w, format, entries, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "KIND\tKEY\tLABEL\tDETAIL\tCOMPOSITES")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.Kind, e.Key, e.Label, e.Detail, len(e.Composites))
		}
	})
}

// -- catalog validate --

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the catalog and report every skipped or fatal entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")
		return runValidate(os.Stdout, outputFormat, cfg.Catalog.Root, strict)
	},
}

// runValidate prints the load report. A fatal load error is returned after
// the report is printed; with strict, skipped entries also fail.
func runValidate(w io.Writer, format, root string, strict bool) error {
	_, report, loadErr := catalog.Load(root)
	if report == nil {
		return eris.Wrap(loadErr, "catalog validate")
	}

	diags := report.Diagnostics
	if format == "table" || format == "" {
		diags = append(report.Skipped(), fatalDiagnostics(report)...)
	}
	err := render(w, format, diags, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "SEVERITY\tKIND\tKEY\tERROR")
		for _, d := range diags {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Severity, d.Kind, d.Key, d.Error)
		}
		fmt.Fprintf(tw, "\n%d loaded, %d skipped, %d fatal\n",
			report.Count(catalog.SeverityLoaded), report.Count(catalog.SeveritySkipped), report.Count(catalog.SeverityFatal))
	})
	if err != nil {
		return err
	}

	if loadErr != nil {
		return eris.Wrap(loadErr, "catalog validate")
	}
	if strict && report.Count(catalog.SeveritySkipped) > 0 {
		keys := make([]string, 0)
		for _, d := range report.Skipped() {
			keys = append(keys, d.Kind+" "+d.Key)
		}
		return eris.Errorf("catalog validate: %d skipped entries: %s", len(keys), strings.Join(keys, ", "))
	}
	return nil
}

func fatalDiagnostics(r *catalog.LoadReport) []catalog.Diagnostic {
	var out []catalog.Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == catalog.SeverityFatal {
			out = append(out, d)
		}
	}
	return out
}

func init() {
	catalogValidateCmd.Flags().Bool("strict", false, "fail when any entry was skipped")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}
