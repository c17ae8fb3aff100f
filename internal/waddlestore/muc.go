package waddlestore

import (
	"fmt"
	"time"

	"github.com/waddle-social/app/internal/eventbus"
)

// RecordJoin persists a room join, establishing (or refreshing) its
// joined_at timestamp.
func (s *Store) RecordJoin(room, nick string) error {
	_, err := s.db.Exec(`
		INSERT INTO muc_rooms (room_jid, nick, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT(room_jid) DO UPDATE SET nick = excluded.nick, joined_at = excluded.joined_at
	`, room, nick, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record muc join: %w", err)
	}
	return nil
}

// RecordLeave removes a room and its occupant list.
func (s *Store) RecordLeave(room string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record muc leave: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM muc_occupants WHERE room_jid = ?`, room); err != nil {
		return fmt.Errorf("record muc leave: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM muc_rooms WHERE room_jid = ?`, room); err != nil {
		return fmt.Errorf("record muc leave: %w", err)
	}
	return tx.Commit()
}

// SetSubject persists a room's current subject.
func (s *Store) SetSubject(room, subject string) error {
	_, err := s.db.Exec(`UPDATE muc_rooms SET subject = ? WHERE room_jid = ?`, subject, room)
	if err != nil {
		return fmt.Errorf("set muc subject: %w", err)
	}
	return nil
}

// UpsertOccupant idempotently writes an occupant's current affiliation
// and role, or removes the row when role is MucRoleNone (departure).
func (s *Store) UpsertOccupant(room string, occ eventbus.MucOccupant) error {
	if occ.Role == eventbus.MucRoleNone {
		_, err := s.db.Exec(`DELETE FROM muc_occupants WHERE room_jid = ? AND nick = ?`, room, occ.Nick)
		if err != nil {
			return fmt.Errorf("remove muc occupant: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO muc_occupants (room_jid, nick, jid, affiliation, role)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_jid, nick) DO UPDATE SET
			jid = excluded.jid,
			affiliation = excluded.affiliation,
			role = excluded.role
	`, room, occ.Nick, occ.JID, string(occ.Affiliation), string(occ.Role))
	if err != nil {
		return fmt.Errorf("upsert muc occupant: %w", err)
	}
	return nil
}

// Occupants returns every occupant currently recorded for room.
func (s *Store) Occupants(room string) ([]eventbus.MucOccupant, error) {
	rows, err := s.db.Query(`
		SELECT nick, jid, affiliation, role FROM muc_occupants WHERE room_jid = ? ORDER BY nick
	`, room)
	if err != nil {
		return nil, fmt.Errorf("query muc occupants: %w", err)
	}
	defer rows.Close()

	var out []eventbus.MucOccupant
	for rows.Next() {
		var occ eventbus.MucOccupant
		var aff, role string
		if err := rows.Scan(&occ.Nick, &occ.JID, &aff, &role); err != nil {
			return nil, fmt.Errorf("scan muc occupant: %w", err)
		}
		occ.Affiliation = eventbus.MucAffiliation(aff)
		occ.Role = eventbus.MucRole(role)
		out = append(out, occ)
	}
	return out, rows.Err()
}
