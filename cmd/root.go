package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/config"
)

var (
	cfg *config.Config

	rootOverride string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ltser-cli",
	Short: "LTSER site and zone catalog tooling",
	Long:  "Loads the LTSER shapefile catalog, decomposes DEIMS sites into administrative zones, provisions new sites from the DEIMS registry, and joins datasets onto the resulting composites.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if rootOverride != "" {
			c.Catalog.Root = rootOverride
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootOverride, "root", "", "catalog root (default from config)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format: table, json or yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
