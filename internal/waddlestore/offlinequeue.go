package waddlestore

import (
	"fmt"
	"time"
)

// QueueStatus is the reconciliation state of a queued outbound stanza.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueSent      QueueStatus = "sent"
	QueueConfirmed QueueStatus = "confirmed"
	QueueFailed    QueueStatus = "failed"
)

// StanzaType identifies what kind of outbound stanza a queued row holds.
// Only message rows pass through the sent/confirmed split: iq and
// presence rows have no delivery-receipt or MAM echo to wait for, so
// they drain straight to confirmed.
type StanzaType string

const (
	StanzaMessage  StanzaType = "message"
	StanzaIQ       StanzaType = "iq"
	StanzaPresence StanzaType = "presence"
)

// QueuedMessage is a stanza the message manager could not deliver while
// offline, held for FIFO drain on reconnect.
type QueuedMessage struct {
	ID         string
	To         string
	Body       string
	StanzaType StanzaType
	Status     QueueStatus
}

// Enqueue appends a stanza to the offline queue in pending state.
func (s *Store) Enqueue(id, to, body string, stanzaType StanzaType) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO offline_queue (id, to_jid, body, stanza_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, to, body, stanzaType, QueuePending, now, now)
	if err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// SetQueueStatus unconditionally transitions a queued message to a new
// status. Used for the confirmed/failed terminal transitions, which are
// never reached from more than one reconciliation path racing the same
// row backwards.
func (s *Store) SetQueueStatus(id string, status QueueStatus) error {
	_, err := s.db.Exec(`
		UPDATE offline_queue SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set queue status: %w", err)
	}
	return nil
}

// MarkSentIfPending advances a queued row from pending to sent, and is a
// no-op if the row already moved on (e.g. a delivery receipt or MAM
// result confirmed it before the server echo arrived). This keeps the
// three reconciliation paths a monotonic ratchet regardless of arrival
// order.
func (s *Store) MarkSentIfPending(id string) error {
	_, err := s.db.Exec(`
		UPDATE offline_queue SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, QueueSent, time.Now().UTC(), id, QueuePending)
	if err != nil {
		return fmt.Errorf("mark sent if pending: %w", err)
	}
	return nil
}

// PendingQueue returns every queued stanza still awaiting send, oldest
// first, for FIFO drain on reconnect.
func (s *Store) PendingQueue() ([]QueuedMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, to_jid, body, stanza_type, status FROM offline_queue
		WHERE status = ?
		ORDER BY created_at ASC
	`, QueuePending)
	if err != nil {
		return nil, fmt.Errorf("query pending queue: %w", err)
	}
	defer rows.Close()

	var out []QueuedMessage
	for rows.Next() {
		var m QueuedMessage
		var stanzaType, status string
		if err := rows.Scan(&m.ID, &m.To, &m.Body, &stanzaType, &status); err != nil {
			return nil, fmt.Errorf("scan queued message: %w", err)
		}
		m.StanzaType = StanzaType(stanzaType)
		m.Status = QueueStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}
