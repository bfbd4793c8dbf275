// ABOUTME: HTTP server wiring for the support-chat gateway
// ABOUTME: Mounts auth endpoints, the /api/support REST surface and the /ws push channel

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/broker"
	"github.com/ycyw/support-chat/internal/store"
)

// Server hosts the REST API and push channel for the support chat.
type Server struct {
	store    store.Store
	hub      *broker.Hub
	verifier *auth.JWTVerifier
	tokenTTL time.Duration
	logger   *slog.Logger

	httpServer *http.Server
}

// Config holds the dependencies for a Server.
type Config struct {
	Addr     string
	Store    store.Store
	Hub      *broker.Hub
	Verifier *auth.JWTVerifier
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// New creates a Server with its routes registered.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    cfg.Store,
		hub:      cfg.Hub,
		verifier: cfg.Verifier,
		tokenTTL: cfg.TokenTTL,
		logger:   logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// registerRoutes attaches every endpoint to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health endpoint - no auth required
	mux.HandleFunc("GET /health", s.handleHealth)

	// Account endpoints - no auth required
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	// Support API - bearer token required
	authed := auth.Middleware(s.verifier)
	mux.Handle("GET /api/support/chats", authed(http.HandlerFunc(s.handleListChats)))
	mux.Handle("POST /api/support/chats", authed(http.HandlerFunc(s.handleCreateChat)))
	mux.Handle("PATCH /api/support/chats/{id}/status", authed(http.HandlerFunc(s.handleUpdateStatus)))
	mux.Handle("GET /api/support/chats/{id}/messages", authed(http.HandlerFunc(s.handleListMessages)))
	mux.Handle("POST /api/support/chats/{id}/messages", authed(http.HandlerFunc(s.handleCreateMessage)))

	// Push channel - the handler does its own credential check because the
	// token may arrive as a query parameter instead of a header
	mux.Handle("/ws", broker.NewHandler(s.hub, s.verifier, s.logger))
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sendJSON writes a JSON response with the given status code.
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error body with the given status code.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
