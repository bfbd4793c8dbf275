// ABOUTME: Conversation detail synchronizer with optimistic send
// ABOUTME: Reconciles provisional messages against the REST response

package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ycyw/support-chat/internal/store"
)

// Errors surfaced by Send before any network call.
var (
	// ErrEmptyMessage rejects blank or whitespace-only input.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrSendInFlight rejects a send while a previous one awaits its
	// server response.
	ErrSendInFlight = errors.New("a send is already in flight")
)

// ConversationConfig configures a Conversation.
type ConversationConfig struct {
	ChatID int64
	// Self is the viewer's display name; broker echoes of the
	// viewer's own messages are discarded by comparing against it.
	Self string
	// OnClosed fires when a CLOSE status event arrives on the
	// conversation topic, signalling the view should be left.
	OnClosed func()
	// OnSendFailed fires after a failed send has been rolled back.
	OnSendFailed func(error)
	Logger       *slog.Logger
}

// Conversation holds the ordered message stream of one open chat.
// Ordering is arrival order; the stream is never re-sorted by
// timestamp.
type Conversation struct {
	rest   *RESTClient
	cfg    ConversationConfig
	logger *slog.Logger

	mu       sync.Mutex
	messages []Message
	sending  bool
	// nextProvisional counts down from -1 so provisional ids occupy a
	// namespace a server-assigned id can never reach.
	nextProvisional int64
}

// NewConversation creates a detail synchronizer for one chat.
func NewConversation(rest *RESTClient, cfg ConversationConfig) *Conversation {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		rest:            rest,
		cfg:             cfg,
		logger:          logger.With("component", "conversation", "chat_id", cfg.ChatID),
		nextProvisional: -1,
	}
}

// LoadMessages replaces the stream wholesale from REST history,
// earliest first as returned by the server.
func (c *Conversation) LoadMessages(ctx context.Context) ([]Message, error) {
	history, err := c.rest.ListMessages(ctx, c.cfg.ChatID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = history
	return c.snapshotLocked(), nil
}

// Send appends an optimistic provisional message, posts it to REST,
// and reconciles: on success the provisional entry is replaced in
// place by the server record; on failure it is removed and
// OnSendFailed is notified. Empty input and re-entrant sends are
// rejected without a network call.
func (c *Conversation) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.sending = true
	provisional := Message{
		ID:          c.nextProvisional,
		Sender:      c.cfg.Self,
		Content:     text,
		SentAt:      time.Now(),
		Provisional: true,
	}
	c.nextProvisional--
	c.messages = append(c.messages, provisional)
	c.mu.Unlock()

	confirmed, err := c.rest.SendMessage(ctx, c.cfg.ChatID, c.cfg.Self, text)

	c.mu.Lock()
	c.sending = false
	if err != nil {
		c.removeLocked(provisional.ID)
		c.mu.Unlock()
		c.logger.Warn("send failed, rolled back", "error", err)
		if c.cfg.OnSendFailed != nil {
			c.cfg.OnSendFailed(err)
		}
		return err
	}
	c.replaceLocked(provisional.ID, *confirmed)
	c.mu.Unlock()
	return nil
}

// chatEvent is the union of the two payload shapes delivered on a
// per-conversation topic, disambiguated by which fields are present.
type chatEvent struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// ApplyFrame folds one broker event from the conversation topic into
// the stream. A CLOSE status triggers OnClosed; an echo of the
// viewer's own message is discarded; anything else is appended with a
// provisional identity, since broker message payloads carry only
// sender and content.
func (c *Conversation) ApplyFrame(body json.RawMessage) {
	var event chatEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Debug("discarding malformed chat event", "error", err)
		return
	}

	if event.Status == store.StatusClose {
		if c.cfg.OnClosed != nil {
			c.cfg.OnClosed()
		}
		return
	}
	if event.Sender == "" && event.Content == "" {
		return
	}
	if event.Sender == c.cfg.Self {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{
		ID:          c.nextProvisional,
		Sender:      event.Sender,
		Content:     event.Content,
		SentAt:      time.Now(),
		Provisional: true,
	})
	c.nextProvisional--
}

// Messages returns a copy of the current stream.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) removeLocked(id int64) {
	for i, msg := range c.messages {
		if msg.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

func (c *Conversation) replaceLocked(id int64, replacement Message) {
	for i, msg := range c.messages {
		if msg.ID == id {
			c.messages[i] = replacement
			return
		}
	}
	// The provisional entry vanished (wholesale reload raced the
	// send); fall back to appending so the confirmed message is kept.
	c.messages = append(c.messages, replacement)
}

func (c *Conversation) snapshotLocked() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}
