package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/store"
	"github.com/sells-group/ltser-cli/pkg/deims"
)

// ZoneView is the JSON form of a zone.
type ZoneView struct {
	Key         string         `json:"key"`
	Family      catalog.Family `json:"family"`
	Group       string         `json:"group,omitempty"`
	DisplayName string         `json:"displayName"`
	Global      bool           `json:"global"`
	Features    int            `json:"features"`
}

// SiteView is the JSON form of a site.
type SiteView struct {
	Key         string           `json:"key"`
	ID          string           `json:"id"`
	DisplayName string           `json:"displayName"`
	National    bool             `json:"nationalZonesAvailable"`
	NationalDir string           `json:"nationalZoneDir,omitempty"`
	Composites  []catalog.Option `json:"composites"`
}

func zoneView(z *catalog.Zone) ZoneView {
	return ZoneView{
		Key:         z.Key.String(),
		Family:      z.Key.Family,
		Group:       z.Key.Group,
		DisplayName: z.Metadata.DisplayName,
		Global:      z.Global(),
		Features:    z.Boundaries.Len(),
	}
}

func (s *Server) siteView(site *catalog.Site) SiteView {
	opts := s.cat.ZoneOptions(site.Key)
	if opts == nil {
		opts = []catalog.Option{}
	}
	return SiteView{
		Key:         site.Key,
		ID:          site.Metadata.ID.String(),
		DisplayName: site.Metadata.DisplayName,
		National:    site.Metadata.NationalZonesAvailable,
		NationalDir: site.Metadata.NationalZoneDir,
		Composites:  opts,
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listZones(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zones := s.cat.Zones()
	out := make([]ZoneView, 0, len(zones))
	for _, z := range zones {
		out = append(out, zoneView(z))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	writeJSON(w, http.StatusOK, s.cat.SiteOptions())
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	site, ok := s.cat.Site(chi.URLParam(r, "site"))
	if !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	writeJSON(w, http.StatusOK, s.siteView(site))
}

func (s *Server) siteZones(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := chi.URLParam(r, "site")
	if _, ok := s.cat.Site(key); !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	opts := s.cat.ZoneOptions(key)
	if opts == nil {
		opts = []catalog.Option{}
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) getComposite(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	site, zone, ok := s.lookupComposite(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := site.Composites[zone.Key].EncodeGeoJSON(&buf); err != nil {
		s.log.Error("api: encode composite", zap.String("site", site.Key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode composite")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) compositeSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	site, zone, ok := s.lookupComposite(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, site.Composites[zone.Key].Summarize())
}

// lookupComposite resolves {site} and {zone}, writing a 404 when either the
// site, the zone or the composite is unknown.
func (s *Server) lookupComposite(w http.ResponseWriter, r *http.Request) (*catalog.Site, *catalog.Zone, bool) {
	site, ok := s.cat.Site(chi.URLParam(r, "site"))
	if !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return nil, nil, false
	}
	zone, ok := s.cat.ZoneByKey(chi.URLParam(r, "zone"))
	if !ok {
		writeError(w, http.StatusNotFound, "zone not found")
		return nil, nil, false
	}
	if !site.HasComposite(zone.Key) {
		writeError(w, http.StatusNotFound, "composite not built")
		return nil, nil, false
	}
	return site, zone, true
}

func (s *Server) addSite(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		writeError(w, http.StatusServiceUnavailable, "provisioning disabled")
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	site, err := s.provisioner.ProvisionSite(r.Context(), req.ID)
	if err != nil {
		var idErr *deims.InvalidIdentifierError
		var fetchErr *deims.RemoteFetchError
		switch {
		case errors.As(err, &idErr):
			writeError(w, http.StatusBadRequest, idErr.Error())
		case errors.As(err, &fetchErr):
			writeError(w, http.StatusBadGateway, fetchErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, s.siteView(site))
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	if dryRun {
		s.mu.RLock()
		defer s.mu.RUnlock()
		writeJSON(w, http.StatusOK, s.builder.Missing(s.cat))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.builder.Reconcile(r.Context(), s.cat)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listBuilds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BuildFilter{
		Kind: store.Kind(q.Get("kind")),
		Site: q.Get("site"),
		Zone: q.Get("zone"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	builds, err := s.ledger.ListBuilds(r.Context(), filter)
	if err != nil {
		s.log.Error("api: list builds", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list builds")
		return
	}
	if builds == nil {
		builds = []store.Build{}
	}
	writeJSON(w, http.StatusOK, builds)
}
