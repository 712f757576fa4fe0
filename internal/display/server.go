// Package display serves the pitch trace to browsers: JSON endpoints, a
// rendered chart, a websocket push of new points, and the settings API.
//
// The server only reads from the tracker. It polls at its own refresh
// cadence; the tracker never calls back into it.
package display

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/pitchtrace/internal/health"
	"github.com/MrWong99/pitchtrace/internal/observe"
	"github.com/MrWong99/pitchtrace/internal/settings"
	"github.com/MrWong99/pitchtrace/internal/store"
	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// ChartSpan is the width of the plotted window in seconds.
const ChartSpan = 10.0

// DefaultRefresh is the websocket push cadence.
const DefaultRefresh = 100 * time.Millisecond

// maxSettingsBody bounds PUT /api/settings request bodies.
const maxSettingsBody = 16 << 10

//go:embed static
var staticFS embed.FS

// Source is the read side of the tracker.
type Source interface {
	Snapshot() []tracker.Point
	Since(sec float64) []tracker.Point
	Window(span float64) ([]tracker.Point, float64)
	LastGood() (float64, bool)
	Session() tracker.Session
	Stats() tracker.Stats
	Mode() (tracker.Mode, int)
}

// SessionStore lists recorded sessions. *store.Store satisfies it.
type SessionStore interface {
	Sessions(ctx context.Context, limit int) ([]store.SessionRecord, error)
	Points(ctx context.Context, id string) ([]tracker.Point, error)
}

// Deps are the collaborators of a [Server]. Source and Settings are
// required.
type Deps struct {
	Source   Source
	Settings *settings.Manager

	// Sessions enables /api/sessions. Optional.
	Sessions SessionStore

	// Capture serves /ws/capture, typically the browser capture device.
	// Optional.
	Capture http.Handler

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	// Metrics instruments requests. Defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Refresh is the websocket push cadence. Defaults to DefaultRefresh.
	Refresh time.Duration
}

// Server is the display HTTP server.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// New builds a Server and its routes.
func New(deps Deps) (*Server, error) {
	if deps.Source == nil || deps.Settings == nil {
		return nil, errors.New("display: Source and Settings are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Refresh <= 0 {
		deps.Refresh = DefaultRefresh
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/trace", s.handleTrace)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("GET /chart", s.handleChart)
	s.mux.HandleFunc("GET /ws/trace", s.handleTraceStream)
	s.mux.Handle("GET /metrics", observe.MetricsHandler())

	if s.deps.Sessions != nil {
		s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
		s.mux.HandleFunc("GET /api/sessions/{id}/points", s.handleSessionPoints)
	}
	if s.deps.Capture != nil {
		s.mux.Handle("GET /ws/capture", s.deps.Capture)
	}
	if s.deps.Health != nil {
		s.deps.Health.Register(s.mux)
	}
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.deps.Metrics)(s.mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, staticFS, "static/index.html")
}

// traceResponse is the body of GET /api/trace.
type traceResponse struct {
	Session tracker.Session `json:"session"`
	Points  []tracker.Point `json:"points"`
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	var pts []tracker.Point
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q", raw))
			return
		}
		pts = s.deps.Source.Since(since)
	} else {
		pts = s.deps.Source.Snapshot()
	}
	if pts == nil {
		pts = []tracker.Point{}
	}
	writeJSON(w, http.StatusOK, traceResponse{Session: s.deps.Source.Session(), Points: pts})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BuildStatus(s.deps.Source))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Current())
}

// handlePutSettings applies a full or partial settings record. Absent fields
// keep their current values.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	next := s.deps.Settings.Current()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err))
		return
	}

	applied, err := s.deps.Settings.Update(r.Context(), next)
	if err != nil {
		// The new values are live even though they were not persisted.
		observe.Logger(r.Context()).Warn("display: settings not persisted", "err", err)
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	recs, err := s.deps.Sessions.Sessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSessionPoints(w http.ResponseWriter, r *http.Request) {
	pts, err := s.deps.Sessions.Points(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if pts == nil {
		pts = []tracker.Point{}
	}
	writeJSON(w, http.StatusOK, pts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("display: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
