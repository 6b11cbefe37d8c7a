package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/alert"
	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/httpapi/middleware"
	"github.com/longbark/sitewatch/internal/repo"
)

// Trigger enqueues an out-of-schedule check for one site.
type Trigger interface {
	TriggerImmediateCheck(ctx context.Context, id domain.SiteID) error
}

// Server is the thin operational surface of the engine: health, metrics,
// the immediate-check trigger, and alert lifecycle operations. Site CRUD
// lives elsewhere.
type Server struct {
	Log     *zap.Logger
	Alerts  repo.AlertStore
	Engine  *alert.Engine
	Trigger Trigger
	Keys    middleware.Keys
}

func NewServer(log *zap.Logger, alerts repo.AlertStore, engine *alert.Engine, trigger Trigger, keys middleware.Keys) *Server {
	return &Server{Log: log, Alerts: alerts, Engine: engine, Trigger: trigger, Keys: keys}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(middleware.RateLimit(600, 120))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireAny(s.Keys))

		api.Post("/sites/{id}/check", s.handleTriggerCheck)

		api.Get("/alerts", s.handleListAlerts)
		api.Get("/alerts/{id}", s.handleGetAlert)
		api.Put("/alerts/{id}/acknowledge", s.handleAcknowledge)
		api.Put("/alerts/{id}/resolve", s.handleResolve)

		api.With(middleware.RequireAdmin(s.Keys)).Delete("/alerts/{id}", s.handleDeleteAlert)
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, alert.ErrInvalidState):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid state transition"})
	default:
		s.Log.Warn("api_error", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) handleTriggerCheck(w http.ResponseWriter, r *http.Request) {
	id := domain.SiteID(chi.URLParam(r, "id"))
	if err := s.Trigger.TriggerImmediateCheck(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "check queued"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.AlertFilter{
		SiteID:   domain.SiteID(q.Get("site_id")),
		Type:     domain.AlertType(q.Get("type")),
		Status:   domain.AlertStatus(q.Get("status")),
		Severity: domain.Severity(q.Get("severity")),
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	alerts, err := s.Alerts.List(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.Alerts.GetAlert(r.Context(), domain.AlertID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := s.Engine.Acknowledge(r.Context(), domain.AlertID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

type resolvePayload struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var p resolvePayload
	if r.Body != nil {
		// An empty body is fine: resolver identity is optional.
		_ = json.NewDecoder(r.Body).Decode(&p)
	}
	a, err := s.Engine.Resolve(r.Context(), domain.AlertID(chi.URLParam(r, "id")), p.ResolvedBy, p.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), domain.AlertID(chi.URLParam(r, "id"))); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
