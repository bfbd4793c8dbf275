// ABOUTME: Store interface and data types for support-chat persistence
// ABOUTME: Defines User, Chat, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when registering a user whose name is taken
var ErrDuplicateUser = errors.New("user already exists")

// ErrChatClosed is returned when writing a message to a closed chat
var ErrChatClosed = errors.New("chat is closed")

// Role constants for user accounts
const (
	RoleUser    = "USER"    // Ordinary customer
	RoleSupport = "SUPPORT" // Support agent, sees every chat
)

// ChatStatus constants
const (
	StatusOpen  = "OPEN"
	StatusClose = "CLOSE"
)

// User represents an account that can participate in support chats
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	Role         string // RoleUser or RoleSupport
	CreatedAt    time.Time
}

// Chat represents one support conversation
type Chat struct {
	ID        int64
	Title     string
	OwnerID   int64
	Status    string // StatusOpen or StatusClose
	CreatedAt time.Time
}

// Message represents a single message within a chat
type Message struct {
	ID      int64
	ChatID  int64
	Sender  string
	Content string
	SentAt  time.Time
}

// ChatSummary is the list-level view of a chat: identity, title and an
// aggregate message count. It is both the REST list response shape and the
// broker summary-topic payload.
type ChatSummary struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	MessageCount int64  `json:"messageCount"`
	Status       string `json:"status"`
}

// Store defines persistence operations for users, chats and messages
type Store interface {
	// User operations
	CreateUser(ctx context.Context, name, passwordHash, role string) (*User, error)
	GetUserByName(ctx context.Context, name string) (*User, error)

	// Chat operations
	CreateChat(ctx context.Context, title string, ownerID int64) (*Chat, error)
	GetChat(ctx context.Context, id int64) (*Chat, error)
	// ListChats returns open chats visible to the given owner. A zero
	// ownerID lists every open chat (the support-agent view).
	ListChats(ctx context.Context, ownerID int64) ([]ChatSummary, error)
	UpdateChatStatus(ctx context.Context, id int64, status string) (*Chat, error)

	// Message operations
	CreateMessage(ctx context.Context, chatID int64, sender, content string) (*Message, error)
	ListMessages(ctx context.Context, chatID int64) ([]Message, error)
	CountMessages(ctx context.Context, chatID int64) (int64, error)

	// Close releases the underlying database
	Close() error
}
