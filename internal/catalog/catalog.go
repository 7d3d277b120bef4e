package catalog

import (
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sells-group/ltser-cli/internal/overlay"
)

// Option is a display-name to key entry for pickers.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Key   string `json:"key" yaml:"key"`
}

// Catalog owns zones, sites and the display indices derived from them.
// Every mutating method refreshes the indices it affects. A Catalog is not
// safe for concurrent mutation.
type Catalog struct {
	Root string

	zones map[string]*Zone
	sites map[string]*Site

	siteOptions []Option
	zoneOptions map[string][]Option
}

// New returns an empty catalog rooted at root.
func New(root string) *Catalog {
	return &Catalog{
		Root:        root,
		zones:       make(map[string]*Zone),
		sites:       make(map[string]*Site),
		zoneOptions: make(map[string][]Option),
	}
}

// AddZone registers a zone. Keys must be unique by their string form.
func (c *Catalog) AddZone(z *Zone) error {
	k := z.Key.String()
	if _, ok := c.zones[k]; ok {
		return eris.Errorf("catalog: duplicate zone key %q", k)
	}
	c.zones[k] = z
	// Labels of every site's composites may now resolve.
	for sk := range c.sites {
		c.refreshZoneOptions(sk)
	}
	return nil
}

// AddSite registers or replaces a site.
func (c *Catalog) AddSite(s *Site) error {
	if s.Key == "" {
		return eris.New("catalog: site key is empty")
	}
	if s.Composites == nil {
		s.Composites = make(map[ZoneKey]*overlay.Composite)
	}
	c.sites[s.Key] = s
	c.refreshSiteOptions()
	c.refreshZoneOptions(s.Key)
	return nil
}

// SetComposite stores a composite on a site.
func (c *Catalog) SetComposite(siteKey string, key ZoneKey, comp *overlay.Composite) error {
	s, ok := c.sites[siteKey]
	if !ok {
		return eris.Errorf("catalog: unknown site %q", siteKey)
	}
	if _, ok := c.zones[key.String()]; !ok {
		return eris.Errorf("catalog: unknown zone %q", key.String())
	}
	s.Composites[key] = comp
	c.refreshZoneOptions(siteKey)
	return nil
}

// Zone returns the zone with key.
func (c *Catalog) Zone(key ZoneKey) (*Zone, bool) {
	z, ok := c.zones[key.String()]
	if !ok || z.Key != key {
		return nil, false
	}
	return z, true
}

// ZoneByKey returns the zone whose key string is k.
func (c *Catalog) ZoneByKey(k string) (*Zone, bool) {
	z, ok := c.zones[k]
	return z, ok
}

// Site returns the site with directory key k.
func (c *Catalog) Site(k string) (*Site, bool) {
	s, ok := c.sites[k]
	return s, ok
}

// Zones returns all zones sorted by key.
func (c *Catalog) Zones() []*Zone {
	out := make([]*Zone, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Sites returns all sites sorted by key.
func (c *Catalog) Sites() []*Site {
	out := make([]*Site, 0, len(c.sites))
	for _, s := range c.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// GlobalZones returns the zones applicable to every site.
func (c *Catalog) GlobalZones() []*Zone {
	var out []*Zone
	for _, z := range c.Zones() {
		if z.Global() {
			out = append(out, z)
		}
	}
	return out
}

// ExpectedZones returns the zones a site should have composites for: every
// global zone, plus national zones of the site's group when it declares
// national zones available.
func (c *Catalog) ExpectedZones(s *Site) []*Zone {
	var out []*Zone
	for _, z := range c.Zones() {
		if z.AppliesTo(s) {
			out = append(out, z)
		}
	}
	return out
}

// SiteOptions maps site display names to site keys, sorted by label.
func (c *Catalog) SiteOptions() []Option {
	return append([]Option(nil), c.siteOptions...)
}

// ZoneOptions maps zone display names to zone keys for the composites
// currently available on a site, sorted by label.
func (c *Catalog) ZoneOptions(siteKey string) []Option {
	return append([]Option(nil), c.zoneOptions[siteKey]...)
}

func (c *Catalog) refreshSiteOptions() {
	opts := make([]Option, 0, len(c.sites))
	for k, s := range c.sites {
		opts = append(opts, Option{Label: s.Metadata.DisplayName, Key: k})
	}
	sortOptions(opts)
	c.siteOptions = opts
}

func (c *Catalog) refreshZoneOptions(siteKey string) {
	s := c.sites[siteKey]
	opts := make([]Option, 0, len(s.Composites))
	for k := range s.Composites {
		z, ok := c.zones[k.String()]
		if !ok {
			continue
		}
		opts = append(opts, Option{Label: z.Metadata.DisplayName, Key: k.String()})
	}
	sortOptions(opts)
	c.zoneOptions[siteKey] = opts
}

func sortOptions(opts []Option) {
	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(opts, func(i, j int) bool {
		if d := col.CompareString(opts[i].Label, opts[j].Label); d != 0 {
			return d < 0
		}
		return opts[i].Key < opts[j].Key
	})
}
