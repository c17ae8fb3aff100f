package waddlestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/waddle-social/app/internal/eventbus"
)

// UpsertRosterItem idempotently writes a roster entry, replacing any
// prior row for the same JID.
func (s *Store) UpsertRosterItem(item eventbus.RosterItem) error {
	_, err := s.db.Exec(`
		INSERT INTO roster_items (jid, name, subscription, groups, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = excluded.name,
			subscription = excluded.subscription,
			groups = excluded.groups,
			updated_at = excluded.updated_at
	`, item.JID, item.Name, string(item.Subscription), strings.Join(item.Groups, ","), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert roster item: %w", err)
	}
	return nil
}

// DeleteRosterItem removes a roster entry by JID.
func (s *Store) DeleteRosterItem(jid string) error {
	_, err := s.db.Exec(`DELETE FROM roster_items WHERE jid = ?`, jid)
	if err != nil {
		return fmt.Errorf("delete roster item: %w", err)
	}
	return nil
}

// ListRosterItems returns every persisted roster entry, ordered by JID.
func (s *Store) ListRosterItems() ([]eventbus.RosterItem, error) {
	rows, err := s.db.Query(`SELECT jid, name, subscription, groups FROM roster_items ORDER BY jid`)
	if err != nil {
		return nil, fmt.Errorf("list roster items: %w", err)
	}
	defer rows.Close()

	var items []eventbus.RosterItem
	for rows.Next() {
		var jid, name, sub, groups string
		if err := rows.Scan(&jid, &name, &sub, &groups); err != nil {
			return nil, fmt.Errorf("scan roster item: %w", err)
		}
		item := eventbus.RosterItem{JID: jid, Name: name, Subscription: eventbus.Subscription(sub)}
		if groups != "" {
			item.Groups = strings.Split(groups, ",")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
