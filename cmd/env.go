package main

import (
	"context"
	"encoding/json"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/config"
	"github.com/sells-group/ltser-cli/internal/metrics"
	"github.com/sells-group/ltser-cli/internal/resilience"
	"github.com/sells-group/ltser-cli/internal/store"
	"github.com/sells-group/ltser-cli/pkg/deims"
)

// loadCatalog validates cfg for mode and loads the catalog root.
func loadCatalog(mode string) (*catalog.Catalog, *catalog.LoadReport, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, nil, err
	}
	return catalog.Load(cfg.Catalog.Root)
}

// openLedger opens the configured build ledger. A ledger that cannot be
// opened degrades to a no-op store so catalog work still proceeds.
func openLedger(ctx context.Context) store.Store {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		zap.L().Warn("ledger unavailable, builds will not be recorded",
			zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return store.Nop{}
	}
	return st
}

// openLedgerStrict is openLedger for commands that only read the ledger.
func openLedgerStrict(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open ledger")
	}
	return st, nil
}

func newRegistry(c config.DEIMSConfig) deims.Client {
	breaker := deims.NewBreaker(resilience.Config{
		Threshold: c.BreakerThreshold,
		Cooldown:  time.Duration(c.BreakerCooldownSecs) * time.Second,
		OnChange: func(from, to resilience.State) {
			zap.L().Warn("deims: registry breaker state change",
				zap.Stringer("from", from), zap.Stringer("to", to))
			if to == resilience.Open {
				metrics.RegistryBreakerOpen.Set(1)
			} else {
				metrics.RegistryBreakerOpen.Set(0)
			}
		},
	})
	return deims.NewClient(
		deims.WithBreaker(breaker),
		deims.WithBaseURL(c.BaseURL),
		deims.WithGeoserverURL(c.GeoserverURL),
		deims.WithTimeout(time.Duration(c.TimeoutSecs)*time.Second),
		deims.WithRateLimit(c.RatePerSec),
		deims.WithUserAgent(c.UserAgent),
	)
}

// render writes v as JSON or YAML, or calls table with a tabwriter for the
// default table format.
func render(w io.Writer, format string, v any, table func(tw *tabwriter.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}
