package viewserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slickerian/siem/internal/engine"
	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/internal/query"
	"github.com/slickerian/siem/pkg/models"
)

// Server exposes the engine's derived views as read-only JSON plus the
// Prometheus metrics endpoint. Filter changes and the manual snapshot retry
// are the only writes it accepts.
type Server struct {
	engine *engine.Engine
	client *query.Client
}

// NewServer creates a view server over an engine.
func NewServer(eng *engine.Engine, client *query.Client) *Server {
	return &Server{engine: eng, client: client}
}

// Router builds the HTTP routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/views/events", s.handleEvents)
	r.Get("/views/stats", s.handleStats)
	r.Get("/views/histogram", s.handleHistogram)
	r.Get("/views/topology", s.handleTopology)
	r.Get("/views/nodes", s.handleNodes)
	r.Get("/views/connection", s.handleConnection)
	r.Get("/views/export-url", s.handleExportURL)
	r.Post("/views/filter", s.handleSetFilter)
	r.Post("/views/retry", s.handleRetry)
	r.Get("/settings/severity-rules", s.handleGetRules)
	r.Put("/settings/severity-rules", s.handlePutRules)
	r.Get("/settings/nodes/{nodeID}", s.handleGetNodeSettings)
	r.Put("/settings/nodes/{nodeID}", s.handlePutNodeSettings)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	view := s.engine.CurrentView()
	writeJSON(w, map[string]interface{}{
		"events":   view.Events,
		"criteria": view.Criteria,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	view := s.engine.CurrentView()
	resp := map[string]interface{}{
		"stats":     view.Stats,
		"seeded_at": view.SeededAt,
	}
	if err := s.engine.LastError(); err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.CurrentView().Buckets)
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Topology())
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.engine.Nodes()
	if nodes == nil {
		nodes = []models.NodeStatus{}
	}
	writeJSON(w, nodes)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	state := s.engine.Connection()
	writeJSON(w, map[string]interface{}{
		"phase":   state.Phase.String(),
		"attempt": state.Attempt,
	})
}

func (s *Server) handleExportURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"url": s.client.ExportURL(s.engine.CurrentView().Criteria),
	})
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var criteria models.FilterCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		http.Error(w, "invalid criteria payload", http.StatusBadRequest)
		return
	}
	s.engine.SetCriteria(criteria)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.engine.Retry()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.client.SeverityRules(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, rules)
}

// handlePutRules writes the rule table through to the server, then applies
// it locally with an explicit recompute. A write failure leaves local state
// untouched.
func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	var rules models.SeverityRules
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		http.Error(w, "invalid rules payload", http.StatusBadRequest)
		return
	}
	if err := s.client.UpdateSeverityRules(r.Context(), rules); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.engine.UpdateRules(rules)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetNodeSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.client.NodeSettings(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handlePutNodeSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.NodeSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid settings payload", http.StatusBadRequest)
		return
	}
	settings.NodeID = chi.URLParam(r, "nodeID")
	if err := s.client.UpdateNodeSettings(r.Context(), settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode view response: %v", err)
	}
}
