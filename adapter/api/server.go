// Package api provides the HTTP surface: the public booking flow and
// the session-gated admin endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/michael/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	health *observability.HealthRegistry
	logger *slog.Logger
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg ServerConfig, public *PublicHandler, admin *AdminHandler, health *observability.HealthRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:    http.NewServeMux(),
		health: health,
		logger: logger,
	}
	s.registerRoutes(public, admin)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withRequestID(s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes(public *PublicHandler, admin *AdminHandler) {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Public booking flow
	s.mux.HandleFunc("POST /api/parse", public.Parse)
	s.mux.HandleFunc("POST /api/slots", public.Slots)
	s.mux.HandleFunc("POST /api/book", public.Book)

	// Admin session lifecycle
	s.mux.HandleFunc("POST /api/admin/login", admin.Login)
	s.mux.HandleFunc("POST /api/admin/logout", admin.Logout)
	s.mux.HandleFunc("GET /api/admin/session", admin.RequireSession(admin.Session))

	// Admin operations
	s.mux.HandleFunc("GET /api/admin/bookings", admin.RequireSession(admin.ListBookings))
	s.mux.HandleFunc("GET /api/admin/bookings/{id}", admin.RequireSession(admin.GetBooking))
	s.mux.HandleFunc("POST /api/admin/bookings/{id}/cancel", admin.RequireSession(admin.CancelBooking))
	s.mux.HandleFunc("GET /api/admin/dashboard", admin.RequireSession(admin.Dashboard))
	s.mux.HandleFunc("GET /api/admin/calendars", admin.RequireSession(admin.ListCalendars))
	s.mux.HandleFunc("GET /api/admin/calendars/{id}/history", admin.RequireSession(admin.CalendarHistory))
	s.mux.HandleFunc("POST /api/admin/calendars/{id}/sync", admin.RequireSession(admin.SyncCalendar))
	s.mux.HandleFunc("GET /api/admin/availability", admin.RequireSession(admin.GetAvailability))
	s.mux.HandleFunc("PUT /api/admin/availability", admin.RequireSession(admin.PutAvailability))
	s.mux.HandleFunc("GET /api/admin/settings", admin.RequireSession(admin.GetSettings))
	s.mux.HandleFunc("PUT /api/admin/settings", admin.RequireSession(admin.PutSettings))
	s.mux.HandleFunc("GET /api/admin/calendar-view", admin.RequireSession(admin.CalendarView))
}

// withRequestID tags every request with an ID carried through the
// logging context.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithRequestID(r.Context(), observability.NewRequestID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleHealth runs the registered component checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := s.health.Check(r.Context())
	status := observability.OverallStatus(results)
	code := http.StatusOK
	if status != observability.HealthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     string(status),
		"components": results,
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

// Mux exposes the route table; used by tests.
func (s *Server) Mux() http.Handler {
	return s.mux
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
