// Package roster maintains the contact list: full-sync replace, per-item
// upsert/remove pushes, and a reconciling merge that protects optimistic
// local additions from being dropped by a subsequent full sync.
package roster

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/waddle-social/app/internal/eventbus"
	"github.com/waddle-social/app/internal/waddlestore"
)

// Manager owns the roster's persistent state and the in-memory cache
// read accessors serve from.
type Manager struct {
	bus    *eventbus.Bus
	store  *waddlestore.Store
	logger *slog.Logger

	mu    sync.RWMutex
	items map[string]eventbus.RosterItem // keyed by bare JID
}

// New constructs a Manager. A nil logger falls back to slog.Default().
func New(bus *eventbus.Bus, store *waddlestore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{bus: bus, store: store, logger: logger, items: make(map[string]eventbus.RosterItem)}
}

// Run subscribes to the channels the roster manager reacts to and
// processes events strictly sequentially until ctx is cancelled or the
// bus is closed.
func (m *Manager) Run(ctx context.Context) error {
	sub, err := m.bus.Subscribe("**")
	if err != nil {
		return fmt.Errorf("roster: subscribe: %w", err)
	}

	if items, err := m.store.ListRosterItems(); err != nil {
		m.logger.Error("roster: load from storage failed", "error", err)
	} else {
		m.mu.Lock()
		for _, it := range items {
			m.items[it.JID] = it
		}
		m.mu.Unlock()
	}

	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			return m.handleRecvErr(err)
		}
		m.handle(evt)
	}
}

func (m *Manager) handleRecvErr(err error) error {
	m.logger.Warn("roster: subscription ended", "error", err)
	return err
}

func (m *Manager) handle(evt eventbus.Event) {
	switch p := evt.Payload.(type) {
	case eventbus.ConnectionEstablished:
		m.publish(eventbus.ChRosterFetch, eventbus.RosterFetchRequested{})
	case eventbus.RosterReceived:
		if err := m.replaceRoster(p.Items); err != nil {
			m.logger.Error("roster: replace failed", "error", err)
		}
	case eventbus.RosterUpdated:
		if err := m.upsert(p.Item); err != nil {
			m.logger.Error("roster: upsert failed", "error", err)
		}
	case eventbus.RosterRemoved:
		if err := m.remove(p.JID); err != nil {
			m.logger.Error("roster: remove failed", "error", err)
		}
	}
}

// replaceRoster performs a full-sync replace, preserving any local-only
// optimistic row (subscription == none, not present in the server list)
// per the reconciling-merge resolution.
func (m *Manager) replaceRoster(items []eventbus.RosterItem) error {
	m.mu.Lock()
	preserved := make([]eventbus.RosterItem, 0)
	incoming := make(map[string]bool, len(items))
	for _, it := range items {
		incoming[it.JID] = true
	}
	for jid, existing := range m.items {
		if !incoming[jid] && existing.Subscription == eventbus.SubNone {
			preserved = append(preserved, existing)
		}
	}
	m.mu.Unlock()

	tx, err := m.store.DB().Begin()
	if err != nil {
		return fmt.Errorf("replace roster: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM roster_items`); err != nil {
		return fmt.Errorf("replace roster: %w", err)
	}
	for _, it := range append(items, preserved...) {
		if err := upsertTx(tx, it); err != nil {
			return fmt.Errorf("replace roster: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace roster: %w", err)
	}

	m.mu.Lock()
	m.items = make(map[string]eventbus.RosterItem, len(items)+len(preserved))
	for _, it := range items {
		m.items[it.JID] = it
	}
	for _, it := range preserved {
		m.items[it.JID] = it
	}
	m.mu.Unlock()
	return nil
}

func upsertTx(tx *sql.Tx, item eventbus.RosterItem) error {
	groups := ""
	for i, g := range item.Groups {
		if i > 0 {
			groups += ","
		}
		groups += g
	}
	_, err := tx.Exec(`
		INSERT INTO roster_items (jid, name, subscription, groups, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(jid) DO UPDATE SET name=excluded.name, subscription=excluded.subscription, groups=excluded.groups
	`, item.JID, item.Name, string(item.Subscription), groups)
	return err
}

func (m *Manager) upsert(item eventbus.RosterItem) error {
	if item.Subscription == eventbus.SubRemove {
		return m.remove(item.JID)
	}
	if err := m.store.UpsertRosterItem(item); err != nil {
		return err
	}
	m.mu.Lock()
	m.items[item.JID] = item
	m.mu.Unlock()
	return nil
}

func (m *Manager) remove(jid string) error {
	if err := m.store.DeleteRosterItem(jid); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.items, jid)
	m.mu.Unlock()
	return nil
}

// GetRoster returns a snapshot of every roster item, unordered (callers
// needing JID order should sort).
func (m *Manager) GetRoster() []eventbus.RosterItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]eventbus.RosterItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out
}

// AddContact persists a new local-only contact with subscription none
// and requests the server add it, per spec.md §4.4.
func (m *Manager) AddContact(jid, name string, groups []string) error {
	item := eventbus.RosterItem{JID: jid, Name: name, Subscription: eventbus.SubNone, Groups: groups}
	if err := m.store.UpsertRosterItem(item); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	m.mu.Lock()
	m.items[jid] = item
	m.mu.Unlock()
	m.publish(eventbus.ChRosterAdd, eventbus.RosterAddRequested{JID: jid, Name: name, Groups: groups})
	return nil
}

func (m *Manager) publish(ch eventbus.Channel, payload eventbus.Payload) {
	evt := eventbus.NewEvent(ch, eventbus.SystemSource("roster"), payload)
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Error("roster: publish failed", "channel", ch.String(), "error", err)
	}
}
