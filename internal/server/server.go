// Package server exposes the read-only sustainability dashboard API. Every
// endpoint serves from the aggregator's last published snapshot; nothing here
// ever triggers upstream provider traffic.
package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

// SnapshotSource serves the latest published snapshot, or nil before the
// first aggregation completes.
type SnapshotSource interface {
	Latest() *sustain.Snapshot
}

// Server is the dashboard API server.
type Server struct {
	snapshots SnapshotSource
	cfg       config.ServerConfig
}

// New creates a dashboard server over the given snapshot source.
func New(snapshots SnapshotSource, cfg config.ServerConfig) *Server {
	return &Server{snapshots: snapshots, cfg: cfg}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/sustainability", func(r chi.Router) {
		r.Get("/metrics", s.handleMetrics)
		r.Get("/regions", s.handleRegions)
		r.Get("/regions/{region}", s.handleRegionDetail)
		r.Get("/forecast/{region}", s.handleForecast)
		r.Get("/nodes", s.handleNodes)
		r.Get("/health", s.handleProviderHealth)
	})

	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": snap.GeneratedAt,
		"totals":       snap.Totals,
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": snap.GeneratedAt,
		"regions":      snap.Regions,
	})
}

func (s *Server) handleRegionDetail(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	region, ok := regionParam(w, r)
	if !ok {
		return
	}
	detail, ok := snap.RegionDetail(region)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_region",
			"region "+region.String()+" is not known to the directory")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	region, ok := regionParam(w, r)
	if !ok {
		return
	}
	view, ok := snap.Forecasts[region]
	if !ok {
		if _, known := snap.RegionDetail(region); !known {
			writeError(w, http.StatusNotFound, "unknown_region",
				"region "+region.String()+" is not known to the directory")
			return
		}
		writeError(w, http.StatusNotFound, "forecast_unavailable",
			"no cached forecast for region "+region.String())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": snap.GeneratedAt,
		"nodes":        snap.Nodes,
	})
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": snap.GeneratedAt,
		"providers":    snap.Health,
	})
}

// snapshot loads the latest snapshot or answers 503 when aggregation has not
// produced one yet.
func (s *Server) snapshot(w http.ResponseWriter) (*sustain.Snapshot, bool) {
	snap := s.snapshots.Latest()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot_unavailable",
			"no sustainability snapshot has been built yet")
		return nil, false
	}
	return snap, true
}

// regionParam extracts the vendor-qualified region from the URL path,
// handling escaped colons ("aws%3Aus-west-2").
func regionParam(w http.ResponseWriter, r *http.Request) (carbon.Region, bool) {
	raw := chi.URLParam(r, "region")
	decoded, err := url.PathUnescape(raw)
	if err != nil || decoded == "" {
		writeError(w, http.StatusBadRequest, "invalid_region", "malformed region path value")
		return "", false
	}
	return carbon.Region(decoded), true
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
