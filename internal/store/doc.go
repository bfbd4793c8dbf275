// Package store provides persistent storage for the support-chat backend
// using SQLite.
//
// The Store interface covers three entity families:
//
//   - User: accounts with a bcrypt password hash and a USER or SUPPORT role
//   - Chat: one support conversation, OPEN until explicitly closed
//   - Message: append-only message log per chat
//
// SQLiteStore is the only production implementation. It creates its schema
// on first open and runs with WAL mode enabled. ListChats returns
// ChatSummary values (id, title, message count, status) — the same shape
// the REST list endpoint returns and the broker summary topics carry, so
// the aggregate count is computed in one place.
package store
