// ABOUTME: HTTP handler upgrading /ws requests to websocket push-channel sessions
// ABOUTME: Verifies the bearer credential from header or access_token query parameter

package broker

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ycyw/support-chat/internal/auth"
)

// Handler upgrades HTTP requests on the push-channel endpoint into
// websocket sessions attached to the hub.
type Handler struct {
	hub      *Hub
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// NewHandler creates the /ws endpoint handler. Pass nil logger for default.
func NewHandler(hub *Hub, verifier auth.TokenVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:      hub,
		verifier: verifier,
		logger:   logger.With("component", "ws"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		http.Error(w, `{"error":"missing credentials"}`, http.StatusUnauthorized)
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser and CLI clients connect from arbitrary origins; auth is
		// the bearer token, not the Origin header.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", "error", err)
		return
	}

	h.logger.Info("push channel connected", "user", identity.Name, "role", identity.Role)
	sess := newSession(conn, h.hub, identity, h.logger)
	sess.run(r.Context())
	h.logger.Info("push channel disconnected", "user", identity.Name)
}
