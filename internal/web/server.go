// Package web serves a read-only status endpoint while a sync runs.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/reconcile"
	weblog "github.com/JonMunkholm/servicesync/internal/web/middleware"
)

// Status is the body of GET /status.
type Status struct {
	reconcile.ProgressSnapshot
	InputPercent int `json:"input_percent"`
}

// StatusFunc returns the current status. It is called from request goroutines.
type StatusFunc func() Status

// Server is the HTTP status server.
type Server struct {
	cfg    config.StatusConfig
	status StatusFunc
	router *chi.Mux

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewServer creates a Server reporting status. Only cfg's APIKeys and
// TrustedProxies are used here; the address is given to Start.
func NewServer(cfg config.StatusConfig, status StatusFunc) *Server {
	s := &Server{
		cfg:    cfg,
		status: status,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(weblog.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(weblog.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Group(func(r chi.Router) {
		r.Use(weblog.APIKeyAuth(s.cfg.APIKeys))
		r.Get("/status", s.handleStatus)
	})
}

// Serve serves on ln until Shutdown. Request logs carry the values of ctx,
// such as the run id. If Shutdown already ran, ln is closed and Serve
// returns nil at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ln.Close()
	}
	s.server = srv
	s.mu.Unlock()

	slog.Info("status server listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON. Encoding errors are only logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
