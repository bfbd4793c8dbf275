// ABOUTME: REST client for the support-chat backend
// ABOUTME: All writes go through here; the broker channel is receive-only

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ycyw/support-chat/internal/store"
)

// Errors surfaced by REST calls.
var (
	// ErrUnauthorized means the credential was missing, expired, or wrong.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict means the request lost to existing state, such as a
	// duplicate account name or a message sent to a closed conversation.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means the referenced conversation does not exist.
	ErrNotFound = errors.New("not found")
)

// Message is one entry in a conversation's message stream.
//
// Provisional marks an entry the server has not confirmed yet. Its ID
// lives in a separate, negative namespace so it can never collide with
// a server-assigned id.
type Message struct {
	ID          int64     `json:"id"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sentAt"`
	Provisional bool      `json:"-"`
}

// Credentials is the result of a successful login or registration.
type Credentials struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// RESTClient talks to the support-chat REST surface. The token
// function is consulted per request so a re-login takes effect
// without rebuilding the client.
type RESTClient struct {
	baseURL string
	token   func() string
	http    *http.Client
}

// NewRESTClient creates a client for the backend at baseURL. token may
// be nil for the unauthenticated calls (login, register).
func NewRESTClient(baseURL string, token func() string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Login exchanges a name and password for a bearer token.
func (c *RESTClient) Login(ctx context.Context, name, password string) (*Credentials, error) {
	var creds Credentials
	err := c.do(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"name": name, "password": password}, &creds)
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

// Register creates an account and returns its credentials. An empty
// role defaults to the ordinary user role on the server.
func (c *RESTClient) Register(ctx context.Context, name, password, role string) (*Credentials, error) {
	var creds Credentials
	err := c.do(ctx, http.MethodPost, "/api/auth/register",
		map[string]string{"name": name, "password": password, "role": role}, &creds)
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

// ListChats fetches the conversation summaries visible to the caller.
func (c *RESTClient) ListChats(ctx context.Context) ([]store.ChatSummary, error) {
	var summaries []store.ChatSummary
	if err := c.do(ctx, http.MethodGet, "/api/support/chats", nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// CreateChat opens a new conversation with the given title.
func (c *RESTClient) CreateChat(ctx context.Context, title string) (*store.ChatSummary, error) {
	var summary store.ChatSummary
	err := c.do(ctx, http.MethodPost, "/api/support/chats",
		map[string]string{"title": title}, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// CloseChat transitions a conversation to the closed status.
func (c *RESTClient) CloseChat(ctx context.Context, chatID int64) error {
	path := fmt.Sprintf("/api/support/chats/%d/status", chatID)
	return c.do(ctx, http.MethodPatch, path, map[string]string{"status": store.StatusClose}, nil)
}

// ListMessages fetches a conversation's history, earliest first.
func (c *RESTClient) ListMessages(ctx context.Context, chatID int64) ([]Message, error) {
	var messages []Message
	path := fmt.Sprintf("/api/support/chats/%d/messages", chatID)
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage persists a message and returns the server-confirmed
// record with its authoritative id and timestamp.
func (c *RESTClient) SendMessage(ctx context.Context, chatID int64, sender, content string) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/api/support/chats/%d/messages", chatID)
	err := c.do(ctx, http.MethodPost, path,
		map[string]string{"sender": sender, "content": content}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, errorMessage(resp.Body, resp.Status))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: %s", method, path, errorMessage(resp.Body, resp.Status))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the server's error field when present, falling
// back to the HTTP status line.
func errorMessage(body io.Reader, status string) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return status
}
