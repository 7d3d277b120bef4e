package catalog

import (
	"strconv"
	"strings"
)

// Family is a zone family.
type Family string

const (
	FamilyNUTS     Family = "nuts"
	FamilyLAU      Family = "lau"
	FamilyNational Family = "national"
)

// NUTSLevels is the number of NUTS levels per group (nuts0..nuts3).
const NUTSLevels = 4

// ZoneKey identifies a zone layer within a catalog.
type ZoneKey struct {
	Family Family
	// Group is the NUTS group directory or the national country directory.
	Group string
	// Level is the NUTS level; unused for other families.
	Level int
	// Name is the LAU or national zone directory name.
	Name string
}

// NUTSKey returns the key for a NUTS level of group.
func NUTSKey(group string, level int) ZoneKey {
	return ZoneKey{Family: FamilyNUTS, Group: group, Level: level}
}

// LAUKey returns the key for a LAU zone directory.
func LAUKey(name string) ZoneKey {
	return ZoneKey{Family: FamilyLAU, Name: name}
}

// NationalKey returns the key for a national zone of country.
func NationalKey(country, name string) ZoneKey {
	return ZoneKey{Family: FamilyNational, Group: country, Name: name}
}

// String returns the stable key: "<group>-<level>" for NUTS, the directory
// name otherwise. Composite directories are named by it.
func (k ZoneKey) String() string {
	if k.Family == FamilyNUTS {
		return k.Group + "-" + strconv.Itoa(k.Level)
	}
	return k.Name
}

// MarshalText lets keys serve as JSON map keys.
func (k ZoneKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Global reports whether the zone applies to every site.
func (k ZoneKey) Global() bool {
	return k.Family != FamilyNational
}

// levelDir is the directory name of a NUTS level.
func levelDir(level int) string {
	return "nuts" + strconv.Itoa(level)
}

// splitStem strips every extension from a file name: "AT-1.shp.zip" is "AT-1".
func splitStem(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}
