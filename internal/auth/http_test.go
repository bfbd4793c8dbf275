// ABOUTME: Tests for HTTP auth middleware and credential extraction
// ABOUTME: Covers bearer header, access_token query fallback, and rejection paths

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromRequest_HeaderWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/support/chats?access_token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")

	assert.Equal(t, "from-header", TokenFromRequest(r))
}

func TestTokenFromRequest_QueryFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?access_token=from-query", nil)

	assert.Equal(t, "from-query", TokenFromRequest(r))
}

func TestTokenFromRequest_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)

	assert.Empty(t, TokenFromRequest(r))
}

func TestMiddleware_AttachesIdentity(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))
	token, err := verifier.Generate(Identity{Name: "alice", Role: "USER"}, time.Hour)
	require.NoError(t, err)

	var seen *Identity
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/support/chats", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Name)
	assert.Equal(t, "USER", seen.Role)
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/support/chats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_RejectsBadToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/support/chats", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
