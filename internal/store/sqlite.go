// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/chat/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'USER',
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'OPEN',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_chats_owner_status
			ON chats(owner_id, status);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			sent_at DATETIME NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_sent
			ON messages(chat_id, sent_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close releases the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new user account with the given bcrypt hash and role
func (s *SQLiteStore) CreateUser(ctx context.Context, name, passwordHash, role string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		name, passwordHash, role, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading user id: %w", err)
	}

	return &User{
		ID:           id,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
	}, nil
}

// GetUserByName looks up a user account by its unique name
func (s *SQLiteStore) GetUserByName(ctx context.Context, name string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, role, created_at FROM users WHERE name = ?`,
		name).Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// CreateChat inserts a new open chat owned by the given user
func (s *SQLiteStore) CreateChat(ctx context.Context, title string, ownerID int64) (*Chat, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (title, owner_id, status, created_at) VALUES (?, ?, ?, ?)`,
		title, ownerID, StatusOpen, now)
	if err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading chat id: %w", err)
	}

	return &Chat{
		ID:        id,
		Title:     title,
		OwnerID:   ownerID,
		Status:    StatusOpen,
		CreatedAt: now,
	}, nil
}

// GetChat retrieves a single chat by id
func (s *SQLiteStore) GetChat(ctx context.Context, id int64) (*Chat, error) {
	var c Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, owner_id, status, created_at FROM chats WHERE id = ?`,
		id).Scan(&c.ID, &c.Title, &c.OwnerID, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}
	return &c, nil
}

// ListChats returns open chats with their message counts, newest first.
// A zero ownerID returns every open chat (the support-agent view).
func (s *SQLiteStore) ListChats(ctx context.Context, ownerID int64) ([]ChatSummary, error) {
	query := `
		SELECT c.id, c.title, COUNT(m.id), c.status
		FROM chats c
		LEFT JOIN messages m ON m.chat_id = c.id
		WHERE c.status = ?`
	args := []any{StatusOpen}
	if ownerID != 0 {
		query += ` AND c.owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` GROUP BY c.id ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	summaries := []ChatSummary{}
	for rows.Next() {
		var cs ChatSummary
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.MessageCount, &cs.Status); err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		summaries = append(summaries, cs)
	}
	return summaries, rows.Err()
}

// UpdateChatStatus transitions a chat to the given status and returns the
// updated chat. Returns ErrNotFound if the chat does not exist.
func (s *SQLiteStore) UpdateChatStatus(ctx context.Context, id int64, status string) (*Chat, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return nil, fmt.Errorf("updating chat status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetChat(ctx, id)
}

// CreateMessage appends a message to a chat. Returns ErrChatClosed if the
// chat has been closed and ErrNotFound if it does not exist.
func (s *SQLiteStore) CreateMessage(ctx context.Context, chatID int64, sender, content string) (*Message, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Status == StatusClose {
		return nil, ErrChatClosed
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, sender, content, sent_at) VALUES (?, ?, ?, ?)`,
		chatID, sender, content, now)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading message id: %w", err)
	}

	return &Message{
		ID:      id,
		ChatID:  chatID,
		Sender:  sender,
		Content: content,
		SentAt:  now,
	}, nil
}

// ListMessages returns every message of a chat in insertion order, earliest first
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender, content, sent_at FROM messages
		 WHERE chat_id = ? ORDER BY id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Content, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of messages stored for a chat
func (s *SQLiteStore) CountMessages(ctx context.Context, chatID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}
