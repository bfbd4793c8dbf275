// ABOUTME: Conversation list synchronizer
// ABOUTME: Merges broker summary events into the REST-fetched collection

package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/ycyw/support-chat/internal/store"
)

// ErrEmptyTitle rejects a conversation created with a blank title
// before any network call is made.
var ErrEmptyTitle = errors.New("title must not be empty")

// ChatList holds the conversation summaries for the current viewer.
// REST loads replace the collection wholesale; broker events are
// merged one at a time through Apply.
type ChatList struct {
	rest   *RESTClient
	logger *slog.Logger

	// adoptUnknown lets a summary for an id not yet in the collection
	// be prepended as a new row. Support agents need this to learn
	// about conversations created by users; ordinary users only ever
	// see updates for their own existing row.
	adoptUnknown bool

	mu      sync.Mutex
	chats   []store.ChatSummary
	loading bool
}

// NewChatList creates a list synchronizer. adoptUnknown should be true
// exactly when the viewer is a support agent.
func NewChatList(rest *RESTClient, adoptUnknown bool, logger *slog.Logger) *ChatList {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatList{
		rest:         rest,
		adoptUnknown: adoptUnknown,
		logger:       logger.With("component", "chatlist"),
	}
}

// Load replaces the collection with a fresh REST snapshot. The loading
// flag clears on completion regardless of outcome.
func (l *ChatList) Load(ctx context.Context) ([]store.ChatSummary, error) {
	l.mu.Lock()
	l.loading = true
	l.mu.Unlock()

	summaries, err := l.rest.ListChats(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	if err != nil {
		return nil, err
	}
	l.chats = summaries
	return l.snapshotLocked(), nil
}

// Create opens a new conversation and resynchronizes the collection
// from REST on success.
func (l *ChatList) Create(ctx context.Context, title string) (*store.ChatSummary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	summary, err := l.rest.CreateChat(ctx, title)
	if err != nil {
		return nil, err
	}
	if _, err := l.Load(ctx); err != nil {
		l.logger.Warn("resync after create failed", "error", err)
	}
	return summary, nil
}

// CloseChat requests the status transition. The collection is not
// mutated locally; authoritative removal arrives as a broker CLOSE
// event or with the next Load.
func (l *ChatList) CloseChat(ctx context.Context, chatID int64) error {
	return l.rest.CloseChat(ctx, chatID)
}

// Apply folds one broker summary event into the collection:
//
//  1. CLOSE removes the matching row.
//  2. A known id with a strictly greater messageCount updates the
//     count in place; a non-increasing count is a stale push and is
//     discarded.
//  3. An unknown id is prepended as a new row only when adoptUnknown
//     is set; otherwise it is discarded.
func (l *ChatList) Apply(incoming store.ChatSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if incoming.Status == store.StatusClose {
		for i, existing := range l.chats {
			if existing.ID == incoming.ID {
				l.chats = append(l.chats[:i], l.chats[i+1:]...)
				return
			}
		}
		return
	}

	for i := range l.chats {
		if l.chats[i].ID != incoming.ID {
			continue
		}
		if incoming.MessageCount > l.chats[i].MessageCount {
			l.chats[i].MessageCount = incoming.MessageCount
		}
		return
	}

	if l.adoptUnknown {
		l.chats = append([]store.ChatSummary{incoming}, l.chats...)
	}
}

// ApplyFrame decodes a raw list-topic body and merges it. Malformed
// payloads are dropped; missing fields decode to zero values.
func (l *ChatList) ApplyFrame(body json.RawMessage) {
	var summary store.ChatSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		l.logger.Debug("discarding malformed summary event", "error", err)
		return
	}
	l.Apply(summary)
}

// Chats returns a copy of the current collection.
func (l *ChatList) Chats() []store.ChatSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Loading reports whether a Load is in flight.
func (l *ChatList) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

func (l *ChatList) snapshotLocked() []store.ChatSummary {
	out := make([]store.ChatSummary, len(l.chats))
	copy(out, l.chats)
	return out
}
