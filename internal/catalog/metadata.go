package catalog

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// MetadataFile is the metadata document name in every zone and site
// directory.
const MetadataFile = "metadata.json"

// ZoneMetadata describes a zone layer.
type ZoneMetadata struct {
	DisplayName string `json:"displayName" yaml:"displayName"`
	IDColumn    string `json:"idColumn,omitempty" yaml:"idColumn,omitempty"`
	NameColumn  string `json:"nameColumn,omitempty" yaml:"nameColumn,omitempty"`
}

// SiteID is a DEIMS identifier as stored in site metadata: the registry
// prefix and the UUID suffix.
type SiteID struct {
	Prefix string `json:"prefix" yaml:"prefix"`
	Suffix string `json:"suffix" yaml:"suffix"`
}

// String returns the full identifier.
func (id SiteID) String() string {
	return id.Prefix + id.Suffix
}

// UnmarshalJSON accepts either the {prefix, suffix} object or a plain
// string, which is split after its last slash.
func (id *SiteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		i := strings.LastIndexByte(s, '/')
		id.Prefix, id.Suffix = s[:i+1], s[i+1:]
		return nil
	}

	type plain SiteID
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*id = SiteID(p)
	return nil
}

// SiteMetadata describes a DEIMS site.
type SiteMetadata struct {
	ID                     SiteID `json:"id" yaml:"id"`
	DisplayName            string `json:"displayName" yaml:"displayName"`
	NationalZonesAvailable bool   `json:"nationalZonesAvailable" yaml:"nationalZonesAvailable"`
	NationalZoneDir        string `json:"nationalZoneDir,omitempty" yaml:"nationalZoneDir,omitempty"`
}

// requiredZoneFields lists the metadata keys each zone family must carry.
// National zones are placed by hand and need only a label.
func requiredZoneFields(f Family) []string {
	if f == FamilyNational {
		return []string{"displayName"}
	}
	return []string{"displayName", "idColumn", "nameColumn"}
}

var requiredSiteFields = []string{"id", "displayName", "nationalZonesAvailable"}

// ReadZoneMetadata reads and validates a zone metadata document. The legacy
// "IDColumn" spelling is accepted for idColumn.
func ReadZoneMetadata(path string, family Family) (ZoneMetadata, error) {
	raw, err := readRaw(path)
	if err != nil {
		return ZoneMetadata{}, err
	}
	if _, ok := raw["idColumn"]; !ok {
		if legacy, ok := raw["IDColumn"]; ok {
			raw["idColumn"] = legacy
		}
	}

	md := ZoneMetadata{}
	fields := map[string]*string{
		"displayName": &md.DisplayName,
		"idColumn":    &md.IDColumn,
		"nameColumn":  &md.NameColumn,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return ZoneMetadata{}, &SchemaValidationError{Path: path, Err: eris.Wrapf(err, "field %s", key)}
		}
	}

	var missing []string
	for _, key := range requiredZoneFields(family) {
		if strings.TrimSpace(*fields[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return ZoneMetadata{}, &SchemaValidationError{Path: path, Missing: missing}
	}
	return md, nil
}

// ReadSiteMetadata reads and validates a site metadata document.
func ReadSiteMetadata(path string) (SiteMetadata, error) {
	raw, err := readRaw(path)
	if err != nil {
		return SiteMetadata{}, err
	}

	var missing []string
	for _, key := range requiredSiteFields {
		if v, ok := raw[key]; !ok || string(v) == "null" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return SiteMetadata{}, &SchemaValidationError{Path: path, Missing: missing}
	}

	var md SiteMetadata
	data, _ := json.Marshal(raw)
	if err := json.Unmarshal(data, &md); err != nil {
		return SiteMetadata{}, &SchemaValidationError{Path: path, Err: err}
	}
	if md.DisplayName == "" {
		return SiteMetadata{}, &SchemaValidationError{Path: path, Missing: []string{"displayName"}}
	}
	if md.ID.Suffix == "" {
		return SiteMetadata{}, &SchemaValidationError{Path: path, Missing: []string{"id"}}
	}
	return md, nil
}

// WriteSiteMetadata writes md as indented JSON.
func WriteSiteMetadata(path string, md SiteMetadata) error {
	data, err := json.MarshalIndent(md, "", "    ")
	if err != nil {
		return eris.Wrap(err, "catalog: marshal site metadata")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "catalog: write %s", path)
	}
	return nil
}

func readRaw(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaValidationError{Path: path, Err: err}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaValidationError{Path: path, Err: err}
	}
	if raw == nil {
		return nil, &SchemaValidationError{Path: path, Err: eris.New("metadata is not a JSON object")}
	}
	return raw, nil
}
