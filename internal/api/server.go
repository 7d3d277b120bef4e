// Package api serves the catalog, composites and provisioning over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/ltser-cli/internal/catalog"
	"github.com/sells-group/ltser-cli/internal/composite"
	"github.com/sells-group/ltser-cli/internal/metrics"
	"github.com/sells-group/ltser-cli/internal/provision"
	"github.com/sells-group/ltser-cli/internal/store"
)

// Server holds the catalog behind a lock shared by all handlers. Reads take
// the read lock; provisioning and reconciling take the write lock.
type Server struct {
	mu          sync.RWMutex
	cat         *catalog.Catalog
	builder     *composite.Builder
	provisioner *provision.Provisioner
	ledger      store.Store
	origins     []string
	log         *zap.Logger
}

// Options configures a Server. A nil Provisioner disables POST /sites.
type Options struct {
	Builder        *composite.Builder
	Provisioner    *provision.Provisioner
	Ledger         store.Store
	AllowedOrigins []string
}

// NewServer returns a Server over cat.
func NewServer(cat *catalog.Catalog, opts Options) *Server {
	if opts.Ledger == nil {
		opts.Ledger = store.Nop{}
	}
	if opts.Builder == nil {
		opts.Builder = composite.NewBuilder(opts.Ledger)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		cat:         cat,
		builder:     opts.Builder,
		provisioner: opts.Provisioner,
		ledger:      opts.Ledger,
		origins:     opts.AllowedOrigins,
		log:         zap.L().With(zap.String("component", "api")),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(instrument)

	r.Get("/health", s.health)
	r.Get("/zones", s.listZones)
	r.Get("/sites", s.listSites)
	r.Post("/sites", s.addSite)
	r.Get("/sites/{site}", s.getSite)
	r.Get("/sites/{site}/zones", s.siteZones)
	r.Get("/sites/{site}/composites/{zone}", s.getComposite)
	r.Get("/sites/{site}/composites/{zone}/summary", s.compositeSummary)
	r.Post("/reconcile", s.reconcile)
	r.Get("/builds", s.listBuilds)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// instrument counts requests by route pattern and status code.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
