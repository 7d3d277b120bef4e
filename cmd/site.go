package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ltser-cli/internal/composite"
	"github.com/sells-group/ltser-cli/internal/provision"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage DEIMS sites",
}

var siteAddCmd = &cobra.Command{
	Use:   "add <deims-id>",
	Short: "Fetch a site from the DEIMS registry and add it to the catalog",
	Long:  "Accepts a bare DEIMS UUID or a full https://deims.org/<uuid> URL. The site is composed against every global zone and written under deims/<uuid>/, replacing any previous copy.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cat, _, err := loadCatalog("provision")
		if err != nil {
			return eris.Wrap(err, "site add")
		}

		ledger := openLedger(ctx)
		defer ledger.Close() //nolint:errcheck

		p := provision.New(cat, newRegistry(cfg.DEIMS), composite.NewBuilder(ledger), ledger)
		site, err := p.ProvisionSite(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "site add")
		}

		keys := site.CompositeKeys()
		return render(os.Stdout, outputFormat, map[string]any{
			"key":         site.Key,
			"id":          site.Metadata.ID.String(),
			"displayName": site.Metadata.DisplayName,
			"dir":         site.Dir,
			"composites":  keys,
		}, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Added\t%s (%s)\n", site.Metadata.DisplayName, site.Key)
			fmt.Fprintf(tw, "Directory\t%s\n", site.Dir)
			for _, k := range keys {
				fmt.Fprintf(tw, "Composite\t%s\t%d rows\n", k, site.Composites[k].Len())
			}
		})
	},
}

func init() {
	siteCmd.AddCommand(siteAddCmd)
	rootCmd.AddCommand(siteCmd)
}
