package catalog

import "path/filepath"

// Directory names under the catalog root.
const (
	ZonesDir      = "zones"
	SitesDir      = "deims"
	RawDir        = "raw"
	CompositesDir = "composites"
)

// FamilyDir returns <root>/zones/<family>.
func FamilyDir(root string, f Family) string {
	return filepath.Join(root, ZonesDir, string(f))
}

// ZoneDir returns the directory holding a zone's metadata and boundaries.
func ZoneDir(root string, k ZoneKey) string {
	switch k.Family {
	case FamilyNUTS:
		return filepath.Join(FamilyDir(root, FamilyNUTS), k.Group, levelDir(k.Level))
	case FamilyNational:
		return filepath.Join(FamilyDir(root, FamilyNational), k.Group, k.Name)
	default:
		return filepath.Join(FamilyDir(root, FamilyLAU), k.Name)
	}
}

// SiteDir returns <root>/deims/<site>.
func SiteDir(root, siteKey string) string {
	return filepath.Join(root, SitesDir, siteKey)
}

// RawBoundaryDir returns the directory holding a site's own boundary.
func RawBoundaryDir(siteDir string) string {
	return filepath.Join(siteDir, RawDir)
}

// CompositeDir returns the directory a composite of the site against zone k
// is persisted in.
func CompositeDir(siteDir string, k ZoneKey) string {
	return filepath.Join(siteDir, CompositesDir, k.String())
}
