package composite

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/catalog"
)

// SiteReport lists the zone keys built (or missing) for one site.
type SiteReport struct {
	Site  string   `json:"site" yaml:"site"`
	Zones []string `json:"zones" yaml:"zones"`
}

// Report lists sites with gaps, in site order. Sites without gaps are not
// reported.
type Report struct {
	Sites []SiteReport `json:"sites" yaml:"sites"`
}

// Count returns the total number of (site, zone) pairs in the report.
func (r *Report) Count() int {
	n := 0
	for _, s := range r.Sites {
		n += len(s.Zones)
	}
	return n
}

type gap struct {
	site  *catalog.Site
	zones []*catalog.Zone
}

func gaps(cat *catalog.Catalog) []gap {
	var out []gap
	for _, s := range cat.Sites() {
		var missing []*catalog.Zone
		for _, z := range cat.ExpectedZones(s) {
			if !s.HasComposite(z.Key) {
				missing = append(missing, z)
			}
		}
		if len(missing) > 0 {
			out = append(out, gap{site: s, zones: missing})
		}
	}
	return out
}

// Missing reports the composites Reconcile would build, without building.
func (b *Builder) Missing(cat *catalog.Catalog) *Report {
	r := &Report{}
	for _, g := range gaps(cat) {
		sr := SiteReport{Site: g.site.Key}
		for _, z := range g.zones {
			sr.Zones = append(sr.Zones, z.Key.String())
		}
		r.Sites = append(r.Sites, sr)
	}
	return r
}

// Reconcile builds every expected composite a site lacks, persists it and
// stores it in cat. The first build failure stops the run; the report then
// holds what was built before it. A second run over the same catalog
// builds nothing.
func (b *Builder) Reconcile(ctx context.Context, cat *catalog.Catalog) (*Report, error) {
	r := &Report{}
	for _, g := range gaps(cat) {
		sr := SiteReport{Site: g.site.Key}
		for _, z := range g.zones {
			if err := ctx.Err(); err != nil {
				r.add(sr)
				return r, eris.Wrap(err, "composite: reconcile")
			}
			comp, err := b.BuildComposite(ctx, g.site, z)
			if err != nil {
				r.add(sr)
				return r, eris.Wrapf(err, "composite: reconcile %s/%s", g.site.Key, z.Key)
			}
			if err := cat.SetComposite(g.site.Key, z.Key, comp); err != nil {
				r.add(sr)
				return r, err
			}
			sr.Zones = append(sr.Zones, z.Key.String())
		}
		r.add(sr)
	}
	b.log.Info("composite: reconciled", zap.Int("built", r.Count()), zap.Int("sites", len(r.Sites)))
	return r, nil
}

func (r *Report) add(sr SiteReport) {
	if len(sr.Zones) > 0 {
		r.Sites = append(r.Sites, sr)
	}
}
