// ABOUTME: Single-writer session state with explicit login/logout transitions
// ABOUTME: Persists the bearer token and fans out state changes to watchers

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SessionState is a snapshot of who is logged in, if anyone.
type SessionState struct {
	LoggedIn bool
	Name     string
	Role     string
}

// TokenStore persists the bearer token between runs. Implementations
// are consulted only at login, logout, and channel-open time.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokenStore keeps the token in a file with owner-only permissions.
type FileTokenStore struct {
	Path string
}

func (f *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

func (f *FileTokenStore) Clear() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// memoryTokenStore is the fallback when no persistent store is given.
type memoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (m *memoryTokenStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memoryTokenStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *memoryTokenStore) Clear() error {
	return m.Save("")
}

// Session owns the logged-in identity for one client process. All
// writes go through Login and Logout; everything else observes it
// through State, Token, or Watch.
type Session struct {
	rest   *RESTClient
	tokens TokenStore
	logger *slog.Logger

	mu       sync.Mutex
	state    SessionState
	watchers []chan SessionState
}

// NewSession creates a session backed by the given REST client. tokens
// may be nil, in which case the token lives only in memory.
func NewSession(rest *RESTClient, tokens TokenStore, logger *slog.Logger) *Session {
	if tokens == nil {
		tokens = &memoryTokenStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		rest:   rest,
		tokens: tokens,
		logger: logger.With("component", "session"),
	}
}

// Login authenticates against the backend and persists the token.
func (s *Session) Login(ctx context.Context, name, password string) error {
	creds, err := s.rest.Login(ctx, name, password)
	if err != nil {
		return err
	}
	if err := s.tokens.Save(creds.Token); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}

	s.transition(SessionState{LoggedIn: true, Name: creds.Name, Role: creds.Role})
	s.logger.Info("logged in", "name", creds.Name, "role", creds.Role)
	return nil
}

// Logout clears the persisted token and resets the state. Safe to call
// when not logged in.
func (s *Session) Logout() error {
	if err := s.tokens.Clear(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	s.transition(SessionState{})
	s.logger.Info("logged out")
	return nil
}

// State returns the current session snapshot.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token reads the persisted bearer token. Called once per channel-open
// attempt and per REST request; a token rotated mid-session is picked
// up on the next read.
func (s *Session) Token() string {
	token, err := s.tokens.Load()
	if err != nil {
		s.logger.Warn("failed to load token", "error", err)
		return ""
	}
	return token
}

// Watch returns a channel that receives every subsequent state
// transition. Slow watchers miss updates rather than blocking login.
func (s *Session) Watch() <-chan SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan SessionState, 4)
	s.watchers = append(s.watchers, ch)
	return ch
}

func (s *Session) transition(next SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	for _, ch := range s.watchers {
		select {
		case ch <- next:
		default:
		}
	}
}
