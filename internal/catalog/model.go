// Package catalog discovers zone layers and DEIMS sites under a shapefile
// root, validates their metadata, and holds them with their composites in
// an explicit Catalog.
package catalog

import (
	"sort"

	"github.com/sells-group/ltser-cli/internal/overlay"
	"github.com/sells-group/ltser-cli/internal/vector"
)

// Zone is a named spatial partition layer.
type Zone struct {
	Key      ZoneKey
	Metadata ZoneMetadata
	// NatZoneGroup is the national group the zone belongs to; empty for
	// continent-wide zones.
	NatZoneGroup string
	Boundaries   *vector.Layer
	Dir          string
}

// Global reports whether the zone applies to every site.
func (z *Zone) Global() bool {
	return z.NatZoneGroup == ""
}

// AppliesTo reports whether composites of s against z are expected.
func (z *Zone) AppliesTo(s *Site) bool {
	if z.Global() {
		return true
	}
	return s.Metadata.NationalZonesAvailable && s.Metadata.NationalZoneDir == z.NatZoneGroup
}

// Site is a DEIMS research site.
type Site struct {
	// Key is the site directory name.
	Key        string
	Metadata   SiteMetadata
	Boundaries *vector.Layer
	// Composites holds previously built decompositions; not guaranteed
	// complete.
	Composites map[ZoneKey]*overlay.Composite
	Dir        string
}

// CompositeKeys returns the keys of the site's composites, sorted by their
// string form.
func (s *Site) CompositeKeys() []ZoneKey {
	keys := make([]ZoneKey, 0, len(s.Composites))
	for k := range s.Composites {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// HasComposite reports whether a composite for key is loaded.
func (s *Site) HasComposite(key ZoneKey) bool {
	_, ok := s.Composites[key]
	return ok
}
