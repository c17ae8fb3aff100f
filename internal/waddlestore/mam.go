package waddlestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GlobalJID is the sentinel MAM sync cursor key for account-wide (not
// per-conversation) catch-up, matching a <mam:query/> with no "with"
// filter.
const GlobalJID = "__global__"

// SetSyncState updates the MAM sync cursor for jid (or GlobalJID),
// replacing any prior row.
func (s *Store) SetSyncState(jid, lastMessageID string) error {
	_, err := s.db.Exec(`
		INSERT INTO mam_sync_state (jid, last_message_id, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			last_message_id = excluded.last_message_id,
			synced_at = excluded.synced_at
	`, jid, lastMessageID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set sync state: %w", err)
	}
	return nil
}

// ErrNoSyncState is returned by SyncState when no cursor has been
// recorded yet for jid.
var ErrNoSyncState = errors.New("waddlestore: no sync state")

// SyncState returns the last persisted MAM cursor for jid.
func (s *Store) SyncState(jid string) (string, error) {
	var lastID string
	err := s.db.QueryRow(`SELECT last_message_id FROM mam_sync_state WHERE jid = ?`, jid).Scan(&lastID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSyncState
	}
	if err != nil {
		return "", fmt.Errorf("sync state: %w", err)
	}
	return lastID, nil
}
