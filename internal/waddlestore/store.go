// Package waddlestore provides the SQLite-backed persistence layer shared
// by the roster, message, MUC, and MAM managers: one on-disk database per
// account, opened once at startup and migrated forward with
// CREATE TABLE IF NOT EXISTS statements.
package waddlestore

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the single SQLite connection a running core session persists
// its roster, message history, MUC room state, offline command queue, and
// MAM sync cursors through.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at dbPath and runs
// its migrations. The pool is limited to one connection, so the manager
// goroutines take turns on it and a ":memory:" database is the same
// database on every call; WAL mode and a busy timeout are also set.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS roster_items (
		jid TEXT PRIMARY KEY,
		name TEXT,
		subscription TEXT NOT NULL DEFAULT 'none',
		groups TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_jid TEXT NOT NULL,
		from_jid TEXT NOT NULL,
		to_jid TEXT NOT NULL,
		body TEXT NOT NULL,
		message_type TEXT NOT NULL,
		thread TEXT,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_jid, timestamp);

	CREATE TABLE IF NOT EXISTS muc_rooms (
		room_jid TEXT PRIMARY KEY,
		nick TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		joined_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS muc_occupants (
		room_jid TEXT NOT NULL,
		nick TEXT NOT NULL,
		jid TEXT NOT NULL DEFAULT '',
		affiliation TEXT NOT NULL DEFAULT 'none',
		role TEXT NOT NULL DEFAULT 'none',
		PRIMARY KEY (room_jid, nick)
	);

	CREATE TABLE IF NOT EXISTS offline_queue (
		id TEXT PRIMARY KEY,
		to_jid TEXT NOT NULL,
		body TEXT NOT NULL,
		stanza_type TEXT NOT NULL DEFAULT 'message',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offline_queue_status ON offline_queue(status, created_at);

	CREATE TABLE IF NOT EXISTS mam_sync_state (
		jid TEXT PRIMARY KEY,
		last_message_id TEXT NOT NULL DEFAULT '',
		synced_at TEXT NOT NULL
	);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for manager-specific query and
// transaction helpers defined alongside each manager package.
func (s *Store) DB() *sql.DB {
	return s.db
}
