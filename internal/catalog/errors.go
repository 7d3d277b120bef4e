package catalog

import (
	"fmt"
	"strings"
)

// SchemaValidationError reports a metadata document that is unreadable or
// lacks required fields.
type SchemaValidationError struct {
	Path    string
	Missing []string
	Err     error
}

func (e *SchemaValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("schema: %s: missing required fields %s", e.Path, strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("schema: %s: %v", e.Path, e.Err)
	}
	return "schema: " + e.Path
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Err
}

// GeometryLoadError reports a boundary file that is missing or unreadable.
type GeometryLoadError struct {
	Path string
	Err  error
}

func (e *GeometryLoadError) Error() string {
	return fmt.Sprintf("geometry load: %s: %v", e.Path, e.Err)
}

func (e *GeometryLoadError) Unwrap() error {
	return e.Err
}
