// Package provision adds DEIMS sites to a catalog: it fetches the site from
// the registry, composes it against every global zone and persists the
// result atomically.
package provision

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/composite"
	"github.com/sells-group/ltser-cli/internal/metrics"
	"github.com/sells-group/ltser-cli/internal/overlay"
	"github.com/sells-group/ltser-cli/internal/store"
	"github.com/sells-group/ltser-cli/internal/vector"
	"github.com/sells-group/ltser-cli/pkg/deims"
)

// Provisioner provisions remote sites into a catalog.
type Provisioner struct {
	cat     *catalog.Catalog
	client  deims.Client
	builder *composite.Builder
	ledger  store.Store
	log     *zap.Logger
}

// New returns a Provisioner. A nil ledger records nothing.
func New(cat *catalog.Catalog, client deims.Client, builder *composite.Builder, ledger store.Store) *Provisioner {
	if ledger == nil {
		ledger = store.Nop{}
	}
	return &Provisioner{
		cat:     cat,
		client:  client,
		builder: builder,
		ledger:  ledger,
		log:     zap.L().With(zap.String("component", "provision")),
	}
}

// ProvisionSite fetches the site rawID names, composes it against every
// global zone, writes it under deims/<id>/ and registers it in the catalog.
// An existing site with the same id is replaced. On any failure neither the
// catalog nor the tree is changed.
func (p *Provisioner) ProvisionSite(ctx context.Context, rawID string) (*catalog.Site, error) {
	start := time.Now()
	site, err := p.provision(ctx, rawID)
	took := time.Since(start)

	metrics.ProvisionsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	b := &store.Build{
		Kind:       store.KindProvision,
		Site:       rawID,
		Status:     store.StatusSucceeded,
		DurationMS: took.Milliseconds(),
	}
	if err != nil {
		b.Status, b.Error = store.StatusFailed, err.Error()
	} else {
		b.Site, b.Rows = site.Key, len(site.Composites)
	}
	if lerr := p.ledger.RecordBuild(ctx, b); lerr != nil {
		p.log.Warn("provision: ledger write failed", zap.Error(lerr))
	}

	if err != nil {
		p.log.Error("provision: failed", zap.String("id", rawID), zap.Error(err))
		return nil, err
	}
	p.log.Info("provision: added site",
		zap.String("site", site.Key),
		zap.String("name", site.Metadata.DisplayName),
		zap.Int("composites", len(site.Composites)),
		zap.Duration("took", took),
	)
	return site, nil
}

func (p *Provisioner) provision(ctx context.Context, rawID string) (*catalog.Site, error) {
	id, err := deims.NormalizeID(rawID)
	if err != nil {
		return nil, err
	}

	md, err := p.client.FetchSiteMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	layer, err := p.client.FetchSiteBoundaries(ctx, id)
	if err != nil {
		return nil, err
	}

	site := &catalog.Site{
		Key:        id,
		Metadata:   *md,
		Boundaries: layer,
		Composites: make(map[catalog.ZoneKey]*overlay.Composite),
	}
	for _, z := range p.cat.GlobalZones() {
		comp, err := p.builder.Compose(site, z)
		if err != nil {
			return nil, eris.Wrapf(err, "provision: compose %s against %s", id, z.Key)
		}
		site.Composites[z.Key] = comp
	}

	if err := SaveSite(p.cat.Root, site); err != nil {
		return nil, err
	}
	if err := p.cat.AddSite(site); err != nil {
		return nil, err
	}
	return site, nil
}

// SaveSite writes the site's metadata, raw boundary and composites to
// <root>/deims/<key>/, replacing any previous directory. The tree is staged
// in a hidden sibling directory and renamed into place, so a failed save
// leaves the old site untouched. On success site.Dir is set.
func SaveSite(root string, site *catalog.Site) error {
	if site.Key == "" {
		return eris.New("provision: site key is empty")
	}
	base := filepath.Join(root, catalog.SitesDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return eris.Wrapf(err, "provision: create %s", base)
	}
	staging, err := os.MkdirTemp(base, "."+site.Key+"-*")
	if err != nil {
		return eris.Wrap(err, "provision: create staging dir")
	}

	if err := writeSite(staging, site); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	final := catalog.SiteDir(root, site.Key)
	if err := os.RemoveAll(final); err != nil {
		_ = os.RemoveAll(staging)
		return eris.Wrapf(err, "provision: clear %s", final)
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.RemoveAll(staging)
		return eris.Wrapf(err, "provision: move %s into place", final)
	}
	site.Dir = final
	return nil
}

func writeSite(dir string, site *catalog.Site) error {
	if err := catalog.WriteSiteMetadata(filepath.Join(dir, catalog.MetadataFile), site.Metadata); err != nil {
		return err
	}
	if site.Boundaries == nil || site.Boundaries.Len() == 0 {
		return eris.Errorf("provision: site %s has no boundary", site.Key)
	}
	if _, err := vector.Save(catalog.RawBoundaryDir(dir), overlay.BoundaryName, site.Boundaries, nil); err != nil {
		return eris.Wrapf(err, "provision: save boundary of %s", site.Key)
	}
	for _, k := range site.CompositeKeys() {
		if _, err := overlay.Save(catalog.CompositeDir(dir, k), site.Composites[k]); err != nil {
			return eris.Wrapf(err, "provision: save composite %s of %s", k, site.Key)
		}
	}
	return nil
}
