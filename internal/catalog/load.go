package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/metrics"
	"github.com/sells-group/ltser-cli/internal/overlay"
	"github.com/sells-group/ltser-cli/internal/vector"
)

// Severity classifies a load diagnostic.
type Severity string

const (
	SeverityLoaded  Severity = "loaded"
	SeveritySkipped Severity = "skipped"
	SeverityFatal   Severity = "fatal"
)

// Diagnostic records the outcome of loading one directory entry.
type Diagnostic struct {
	Kind     string   `json:"kind" yaml:"kind"`
	Key      string   `json:"key" yaml:"key"`
	Path     string   `json:"path" yaml:"path"`
	Severity Severity `json:"severity" yaml:"severity"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// LoadReport lists a diagnostic for every zone, site and composite entry
// the loader visited.
type LoadReport struct {
	Diagnostics []Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

// Count returns the number of diagnostics with severity s.
func (r *LoadReport) Count(s Severity) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// Skipped returns the skipped diagnostics.
func (r *LoadReport) Skipped() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeveritySkipped {
			out = append(out, d)
		}
	}
	return out
}

type loader struct {
	root   string
	cat    *Catalog
	report *LoadReport
	log    *zap.Logger
}

// Load scans root for zones and sites. Continental (NUTS) and LAU zones
// are load-bearing: invalid metadata aborts the load. National zones with
// invalid metadata, or whose key is already taken, are skipped. A zone whose
// boundaries cannot be loaded aborts the load. Sites with invalid metadata or boundaries are skipped,
// as are individual composites that fail to load. A missing family
// directory counts as empty.
//
// On a fatal error the report is still returned, ending with the fatal
// diagnostic.
func Load(root string) (*Catalog, *LoadReport, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "catalog: open root %s", root)
	}
	if !st.IsDir() {
		return nil, nil, eris.Errorf("catalog: root %s is not a directory", root)
	}

	l := &loader{
		root:   root,
		cat:    New(root),
		report: &LoadReport{},
		log:    zap.L().With(zap.String("component", "catalog")),
	}

	for _, step := range []func() error{l.loadNUTS, l.loadLAU, l.loadNational, l.loadSites} {
		if err := step(); err != nil {
			return nil, l.report, err
		}
	}

	l.log.Info("catalog: loaded",
		zap.String("root", root),
		zap.Int("zones", len(l.cat.zones)),
		zap.Int("sites", len(l.cat.sites)),
		zap.Int("skipped", l.report.Count(SeveritySkipped)),
	)
	return l.cat, l.report, nil
}

func (l *loader) record(kind, key, path string, sev Severity, err error) {
	d := Diagnostic{Kind: kind, Key: key, Path: path, Severity: sev}
	if err != nil {
		d.Error = err.Error()
	}
	l.report.Diagnostics = append(l.report.Diagnostics, d)
	metrics.CatalogEntriesTotal.WithLabelValues(kind, string(sev)).Inc()

	fields := []zap.Field{zap.String("kind", kind), zap.String("key", key), zap.String("path", path)}
	switch sev {
	case SeverityFatal:
		l.log.Error("catalog: fatal entry", append(fields, zap.Error(err))...)
	case SeveritySkipped:
		l.log.Warn("catalog: skipping entry", append(fields, zap.Error(err))...)
	default:
		l.log.Debug("catalog: loaded entry", fields...)
	}
}

func (l *loader) fatal(kind, key, path string, err error) error {
	l.record(kind, key, path, SeverityFatal, err)
	return eris.Wrapf(err, "catalog: %s %s", kind, key)
}

func (l *loader) loadNUTS() error {
	groups, err := listDirs(FamilyDir(l.root, FamilyNUTS))
	if err != nil {
		return err
	}
	for _, group := range groups {
		for level := 0; level < NUTSLevels; level++ {
			key := NUTSKey(group, level)
			if err := l.loadZone(key, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *loader) loadLAU() error {
	names, err := listDirs(FamilyDir(l.root, FamilyLAU))
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := l.loadZone(LAUKey(name), ""); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadNational() error {
	base := FamilyDir(l.root, FamilyNational)
	countries, err := listDirs(base)
	if err != nil {
		return err
	}
	for _, country := range countries {
		names, err := listDirs(filepath.Join(base, country))
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := l.loadZone(NationalKey(country, name), country); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *loader) loadZone(key ZoneKey, group string) error {
	dir := ZoneDir(l.root, key)

	md, err := ReadZoneMetadata(filepath.Join(dir, MetadataFile), key.Family)
	if err != nil {
		if key.Family == FamilyNational {
			l.record("zone", key.String(), dir, SeveritySkipped, err)
			return nil
		}
		return l.fatal("zone", key.String(), dir, err)
	}

	layer, err := loadBoundaries(dir)
	if err != nil {
		return l.fatal("zone", key.String(), dir, err)
	}

	z := &Zone{Key: key, Metadata: md, NatZoneGroup: group, Boundaries: layer, Dir: dir}
	if err := l.cat.AddZone(z); err != nil {
		// National keys are bare directory names and may clash across
		// countries or with a LAU zone; the first one loaded wins.
		if key.Family == FamilyNational {
			l.record("zone", key.String(), dir, SeveritySkipped, err)
			return nil
		}
		return l.fatal("zone", key.String(), dir, err)
	}
	l.record("zone", key.String(), dir, SeverityLoaded, nil)
	return nil
}

func (l *loader) loadSites() error {
	keys, err := listDirs(filepath.Join(l.root, SitesDir))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if s := l.loadSite(key); s != nil {
			if err := l.cat.AddSite(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *loader) loadSite(key string) *Site {
	dir := SiteDir(l.root, key)

	md, err := ReadSiteMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		l.record("site", key, dir, SeveritySkipped, err)
		return nil
	}

	layer, err := loadBoundaries(RawBoundaryDir(dir))
	if err != nil {
		// Sites written before raw/ existed keep boundaries at the top level.
		legacy, lerr := loadBoundaries(dir)
		if lerr != nil {
			l.record("site", key, dir, SeveritySkipped, err)
			return nil
		}
		layer = legacy
	}

	s := &Site{
		Key:        key,
		Metadata:   md,
		Boundaries: layer,
		Composites: make(map[ZoneKey]*overlay.Composite),
		Dir:        dir,
	}
	l.loadComposites(s)
	l.record("site", key, dir, SeverityLoaded, nil)
	return s
}

func (l *loader) loadComposites(s *Site) {
	base := filepath.Join(s.Dir, CompositesDir)
	entries, err := os.ReadDir(base)
	if err != nil {
		if !os.IsNotExist(err) {
			l.record("composite", s.Key, base, SeveritySkipped, err)
		}
		return
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".partial") {
			continue
		}
		keyStr := name
		if !e.IsDir() {
			keyStr = splitStem(name)
		}
		path := filepath.Join(base, name)
		diagKey := s.Key + "/" + keyStr

		z, ok := l.cat.ZoneByKey(keyStr)
		if !ok {
			l.record("composite", diagKey, path, SeveritySkipped, eris.Errorf("catalog: no zone with key %q", keyStr))
			continue
		}
		comp, err := overlay.Load(path)
		if err != nil {
			l.record("composite", diagKey, path, SeveritySkipped, &GeometryLoadError{Path: path, Err: err})
			continue
		}
		s.Composites[z.Key] = comp
		l.record("composite", diagKey, path, SeverityLoaded, nil)
	}
}

// loadBoundaries resolves and reads the boundary file in dir.
func loadBoundaries(dir string) (*vector.Layer, error) {
	path, err := vector.Resolve(dir)
	if err != nil {
		return nil, &GeometryLoadError{Path: dir, Err: err}
	}
	layer, err := vector.Open(path)
	if err != nil {
		return nil, &GeometryLoadError{Path: path, Err: err}
	}
	if layer.Len() == 0 {
		return nil, &GeometryLoadError{Path: path, Err: eris.New("no polygon features")}
	}
	return layer, nil
}

// listDirs returns the sorted, non-hidden subdirectory names of dir. A
// missing dir yields none.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "catalog: read %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
