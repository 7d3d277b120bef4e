// Package composite builds and persists site decompositions and keeps a
// catalog's composites complete.
package composite

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/metrics"
	"github.com/sells-group/ltser-cli/internal/overlay"
	"github.com/sells-group/ltser-cli/internal/store"
	"github.com/sells-group/ltser-cli/internal/vector"
)

// Builder composes sites against zones, persists the result and records
// each build in the ledger.
type Builder struct {
	ledger store.Store
	debug  io.Writer
	log    *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithDebug writes overlay debug layers to w.
func WithDebug(w io.Writer) Option {
	return func(b *Builder) { b.debug = w }
}

// NewBuilder returns a Builder recording to ledger. A nil ledger records
// nothing.
func NewBuilder(ledger store.Store, opts ...Option) *Builder {
	if ledger == nil {
		ledger = store.Nop{}
	}
	b := &Builder{
		ledger: ledger,
		log:    zap.L().With(zap.String("component", "composite")),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Compose decomposes the site boundary against the zone layer in memory.
func (b *Builder) Compose(site *catalog.Site, zone *catalog.Zone) (*overlay.Composite, error) {
	if zone.Boundaries == nil {
		return nil, &catalog.GeometryLoadError{Path: zone.Dir, Err: eris.New("zone has no boundaries")}
	}
	idCol, nameCol := zone.Metadata.IDColumn, zone.Metadata.NameColumn
	var missing []string
	if idCol == "" || !zone.Boundaries.HasField(idCol) {
		missing = append(missing, "idColumn")
	}
	if nameCol == "" || !zone.Boundaries.HasField(nameCol) {
		missing = append(missing, "nameColumn")
	}
	if len(missing) > 0 {
		return nil, &catalog.SchemaValidationError{
			Path:    filepath.Join(zone.Dir, catalog.MetadataFile),
			Missing: missing,
			Err:     eris.Errorf("zone %s: id/name columns %q/%q not in boundary fields", zone.Key, idCol, nameCol),
		}
	}
	if site.Boundaries == nil || site.Boundaries.Len() == 0 {
		return nil, &catalog.GeometryLoadError{Path: site.Dir, Err: eris.New("site has no boundary")}
	}
	if err := overlay.CheckUniqueIDs(zone.Boundaries, idCol); err != nil {
		return nil, eris.Wrapf(err, "composite: zone %s", zone.Key)
	}

	var opts []overlay.Option
	if b.debug != nil {
		opts = append(opts, overlay.WithDebug(b.debug))
	}
	return overlay.Decompose(site.Boundaries, zone.Boundaries, idCol, nameCol, opts...)
}

// BuildComposite composes the site against zone and writes the result to
// deims/<site>/composites/<zone-key>/, replacing any previous build.
func (b *Builder) BuildComposite(ctx context.Context, site *catalog.Site, zone *catalog.Zone) (*overlay.Composite, error) {
	start := time.Now()
	comp, err := b.Compose(site, zone)
	if err == nil {
		_, err = overlay.Save(catalog.CompositeDir(site.Dir, zone.Key), comp)
	}
	took := time.Since(start)

	rows := 0
	if comp != nil {
		rows = comp.Len()
	}
	metrics.ObserveBuild(string(zone.Key.Family), rows, took, err)
	b.record(ctx, &store.Build{
		Kind:       store.KindComposite,
		Site:       site.Key,
		Zone:       zone.Key.String(),
		Rows:       rows,
		Status:     status(err),
		Error:      errString(err),
		DurationMS: took.Milliseconds(),
		Footprint:  footprint(site),
	})

	if err != nil {
		b.log.Error("composite: build failed",
			zap.String("site", site.Key), zap.String("zone", zone.Key.String()), zap.Error(err))
		return nil, err
	}
	b.log.Info("composite: built",
		zap.String("site", site.Key),
		zap.String("zone", zone.Key.String()),
		zap.Int("rows", rows),
		zap.Duration("took", took),
	)
	return comp, nil
}

// record writes a ledger entry. Ledger failures never fail a build.
func (b *Builder) record(ctx context.Context, build *store.Build) {
	if err := b.ledger.RecordBuild(ctx, build); err != nil {
		b.log.Warn("composite: ledger write failed", zap.String("site", build.Site), zap.Error(err))
	}
}

func footprint(site *catalog.Site) []byte {
	if site.Boundaries == nil {
		return nil
	}
	data, err := vector.EncodeEWKB(site.Boundaries.Dissolve(), 0)
	if err != nil {
		return nil
	}
	return data
}

func status(err error) store.Status {
	if err != nil {
		return store.StatusFailed
	}
	return store.StatusSucceeded
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
