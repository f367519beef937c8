// Package server is the fittrack sync server: auth, per-domain upsert
// endpoints, admin management, and change-notification fan-out.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/fittrack/internal/auth"
	apperrors "github.com/alexjbarnes/fittrack/internal/errors"
	"github.com/alexjbarnes/fittrack/internal/metrics"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/store"
)

// maxRequestBytes caps upload bodies. A year of daily entries is well
// under a megabyte; 8MB leaves generous headroom.
const maxRequestBytes = 8 * 1024 * 1024

// sessionHeader lets an uploading client name its event-stream session
// so the broadcast skips the device that already has the change.
const sessionHeader = "X-Session-Id"

// Server wires the store, token manager, and event hub behind one mux.
type Server struct {
	store   *store.Store
	auth    *auth.Manager
	hub     *Hub
	logger  *slog.Logger
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// New creates the server and registers all routes. serveMetrics gates
// the /metrics endpoint.
func New(st *store.Store, authManager *auth.Manager, logger *slog.Logger, m *metrics.Metrics, serveMetrics bool) *Server {
	s := &Server{
		store:   st,
		auth:    authManager,
		hub:     NewHub(logger, m),
		logger:  logger,
		metrics: m,
		mux:     http.NewServeMux(),
	}

	s.routes(serveMetrics)

	return s
}

// Hub exposes the event hub, mainly so shutdown can close connections.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes(serveMetrics bool) {
	mux := s.mux

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if serveMetrics {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	authed := func(h http.HandlerFunc) http.Handler {
		return s.auth.RequireAuth(h)
	}

	mux.Handle("GET /sync/menu", authed(s.handleGetEntries(models.DomainMenu)))
	mux.Handle("POST /sync/menu", authed(s.handlePostEntries(models.DomainMenu)))
	mux.Handle("GET /sync/workouts", authed(s.handleGetEntries(models.DomainWorkouts)))
	mux.Handle("POST /sync/workouts", authed(s.handlePostEntries(models.DomainWorkouts)))
	mux.Handle("GET /sync/favorites", authed(s.handleGetFavorites))
	mux.Handle("POST /sync/favorites", authed(s.handlePostFavorites))
	mux.Handle("GET /sync/allowances", authed(s.handleGetAllowances))
	mux.Handle("GET /sync/workout-schedule", authed(s.handleGetWorkoutSchedule))
	mux.Handle("GET /sync/menu-template", authed(s.handleGetMenuTemplate))
	mux.Handle("GET /sync/events", authed(s.handleEvents))

	admin := func(h http.HandlerFunc) http.Handler {
		return s.auth.RequireAuth(auth.RequireAdmin(h))
	}

	mux.Handle("GET /admin/users", admin(s.handleListUsers))
	mux.Handle("POST /admin/users", admin(s.handleCreateUser))
	mux.Handle("DELETE /admin/users/{id}", admin(s.handleDeleteUser))
	mux.Handle("GET /admin/users/{id}/menu", admin(s.handleAdminGetEntries(models.DomainMenu)))
	mux.Handle("POST /admin/users/{id}/menu", admin(s.handleAdminPostEntries(models.DomainMenu)))
	mux.Handle("GET /admin/users/{id}/workouts", admin(s.handleAdminGetEntries(models.DomainWorkouts)))
	mux.Handle("POST /admin/users/{id}/workouts", admin(s.handleAdminPostEntries(models.DomainWorkouts)))
	mux.Handle("GET /admin/users/{id}/allowances", admin(s.handleAdminGetAllowances))
	mux.Handle("PUT /admin/users/{id}/allowances", admin(s.handleAdminPutAllowances))
	mux.Handle("GET /admin/users/{id}/workout-schedule", admin(s.handleAdminGetSchedule))
	mux.Handle("PUT /admin/users/{id}/workout-schedule", admin(s.handleAdminPutSchedule))
	mux.Handle("PUT /admin/users/{id}/menu-template", admin(s.handleAdminAssignTemplate))
	mux.Handle("GET /admin/templates", admin(s.handleListTemplates))
	mux.Handle("POST /admin/templates", admin(s.handleCreateTemplate))
	mux.Handle("PUT /admin/templates/{id}", admin(s.handleUpdateTemplate))
	mux.Handle("DELETE /admin/templates/{id}", admin(s.handleDeleteTemplate))
}

// ServeHTTP implements http.Handler with logging and metrics applied.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.instrument(s.mux).ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store sentinels to HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, apperrors.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "menu template not found")
	case errors.Is(err, apperrors.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already exists")
	default:
		s.logger.Error("internal error", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON request body with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	return json.NewDecoder(r.Body).Decode(v)
}
