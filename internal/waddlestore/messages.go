package waddlestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/waddle-social/app/internal/eventbus"
)

// conversationJID picks the key messages are grouped and queried by: for
// 1:1 chat, the peer's JID (To when localJID sent it, else From); for
// groupchat, the sender's From JID. JIDs are used as given, resource
// included. SaveGroupMessage keys room messages under the room instead.
func conversationJID(msg eventbus.ChatMessage, localJID string) string {
	if msg.MessageType == eventbus.MessageGroupchat {
		return msg.From
	}
	if msg.From == localJID {
		return msg.To
	}
	return msg.From
}

// SaveMessage idempotently persists a chat message, keyed by its ID. A
// retransmitted server echo or a MAM-catch-up copy of an already-seen
// message is a silent no-op.
func (s *Store) SaveMessage(msg eventbus.ChatMessage, localJID string) error {
	return s.saveMessageAs(msg, conversationJID(msg, localJID))
}

// SaveGroupMessage persists a groupchat message keyed under room rather
// than the occupant's in-room JID, so every occupant's messages group
// into the same room conversation.
func (s *Store) SaveGroupMessage(room string, msg eventbus.ChatMessage) error {
	msg.MessageType = eventbus.MessageGroupchat
	return s.saveMessageAs(msg, room)
}

func (s *Store) saveMessageAs(msg eventbus.ChatMessage, conversationJID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO messages (id, conversation_jid, from_jid, to_jid, body, message_type, thread, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, conversationJID, msg.From, msg.To, msg.Body, string(msg.MessageType), msg.Thread, msg.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// HasMessage reports whether a message with the given ID has already
// been persisted.
func (s *Store) HasMessage(id string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return count > 0, nil
}

// ConversationMessages returns the most recent limit messages for a
// conversation, oldest first. When beforeID is non-empty, only messages
// strictly older than that message are considered, letting callers page
// backward through history one screen at a time.
func (s *Store) ConversationMessages(conversationJID string, limit int, beforeID string) ([]eventbus.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if beforeID != "" {
		rows, err = s.db.Query(`
			SELECT id, from_jid, to_jid, body, message_type, thread, timestamp
			FROM (
				SELECT id, from_jid, to_jid, body, message_type, thread, timestamp
				FROM messages
				WHERE conversation_jid = ?
				AND timestamp < (SELECT timestamp FROM messages WHERE id = ?)
				ORDER BY timestamp DESC
				LIMIT ?
			)
			ORDER BY timestamp ASC
		`, conversationJID, beforeID, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, from_jid, to_jid, body, message_type, thread, timestamp
			FROM (
				SELECT id, from_jid, to_jid, body, message_type, thread, timestamp
				FROM messages
				WHERE conversation_jid = ?
				ORDER BY timestamp DESC
				LIMIT ?
			)
			ORDER BY timestamp ASC
		`, conversationJID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation messages: %w", err)
	}
	defer rows.Close()

	var out []eventbus.ChatMessage
	for rows.Next() {
		var m eventbus.ChatMessage
		var mtype string
		var thread sql.NullString
		var ts time.Time
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Body, &mtype, &thread, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.MessageType = eventbus.MessageType(mtype)
		m.Thread = thread.String
		m.Timestamp = ts
		out = append(out, m)
	}
	return out, rows.Err()
}

// ErrNoMessages is returned by LatestMessageID when a conversation has
// no persisted messages to anchor a MAM query against.
var ErrNoMessages = errors.New("waddlestore: no messages")

// OldestMessageID returns the ID of the oldest persisted message in a
// conversation, used as the MAM "before" cursor for backward scroll.
func (s *Store) OldestMessageID(conversationJID string) (string, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM messages WHERE conversation_jid = ? ORDER BY timestamp ASC LIMIT 1
	`, conversationJID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoMessages
	}
	if err != nil {
		return "", fmt.Errorf("oldest message id: %w", err)
	}
	return id, nil
}

// LatestMessageID returns the ID of the most recently timestamped
// message in a conversation, used as the MAM "after" cursor.
func (s *Store) LatestMessageID(conversationJID string) (string, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM messages WHERE conversation_jid = ? ORDER BY timestamp DESC LIMIT 1
	`, conversationJID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoMessages
	}
	if err != nil {
		return "", fmt.Errorf("latest message id: %w", err)
	}
	return id, nil
}
