// ABOUTME: Tests for session state transitions and token persistence
// ABOUTME: Login/logout drive the stream; the token survives in a file

package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycyw/support-chat/internal/store"
)

func newSessionBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(Credentials{Token: "tok-" + req.Name, Name: req.Name, Role: store.RoleUser})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestSession_LoginLogout(t *testing.T) {
	ts := newSessionBackend(t)
	tokens := &FileTokenStore{Path: filepath.Join(t.TempDir(), "token")}
	s := NewSession(NewRESTClient(ts.URL, nil), tokens, nil)

	assert.False(t, s.State().LoggedIn)
	assert.Empty(t, s.Token())

	require.NoError(t, s.Login(t.Context(), "alice", "pw"))
	state := s.State()
	assert.True(t, state.LoggedIn)
	assert.Equal(t, "alice", state.Name)
	assert.Equal(t, store.RoleUser, state.Role)
	assert.Equal(t, "tok-alice", s.Token())

	require.NoError(t, s.Logout())
	assert.False(t, s.State().LoggedIn)
	assert.Empty(t, s.Token())
}

func TestSession_FailedLoginLeavesStateUntouched(t *testing.T) {
	ts := newSessionBackend(t)
	s := NewSession(NewRESTClient(ts.URL, nil), nil, nil)

	err := s.Login(t.Context(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, s.State().LoggedIn)
	assert.Empty(t, s.Token())
}

func TestSession_WatchReceivesTransitions(t *testing.T) {
	ts := newSessionBackend(t)
	s := NewSession(NewRESTClient(ts.URL, nil), nil, nil)
	updates := s.Watch()

	require.NoError(t, s.Login(t.Context(), "alice", "pw"))
	require.NoError(t, s.Logout())

	first := recvState(t, updates)
	assert.True(t, first.LoggedIn)
	assert.Equal(t, "alice", first.Name)

	second := recvState(t, updates)
	assert.False(t, second.LoggedIn)
}

func recvState(t *testing.T, ch <-chan SessionState) SessionState {
	t.Helper()
	select {
	case state := <-ch:
		return state
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session update")
		return SessionState{}
	}
}

func TestFileTokenStore_RoundTrip(t *testing.T) {
	tokens := &FileTokenStore{Path: filepath.Join(t.TempDir(), "nested", "token")}

	token, err := tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, token, "missing file reads as empty token")

	require.NoError(t, tokens.Save("abc123"))
	token, err = tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	require.NoError(t, tokens.Clear())
	require.NoError(t, tokens.Clear()) // idempotent
	token, err = tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}
