// Package muc implements multi-user chat room join/leave lifecycle,
// occupant tracking, and groupchat message persistence.
package muc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/waddle-social/app/internal/eventbus"
	"github.com/waddle-social/app/internal/waddlestore"
)

// Manager owns the in-memory joined-room set, which serves
// GetJoinedRooms. Occupants are not cached in memory: they are kept in
// the database, and GetOccupants reads them from there.
type Manager struct {
	bus    *eventbus.Bus
	store  *waddlestore.Store
	logger *slog.Logger
	ownJID string

	mu     sync.RWMutex
	joined map[string]bool // room jid -> joined
}

// New constructs a Manager for the account identified by ownJID.
func New(bus *eventbus.Bus, store *waddlestore.Store, ownJID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{bus: bus, store: store, ownJID: ownJID, logger: logger, joined: make(map[string]bool)}
}

// Run subscribes to every channel the MUC manager reacts to and
// processes events strictly sequentially.
func (m *Manager) Run(ctx context.Context) error {
	sub, err := m.bus.Subscribe("**")
	if err != nil {
		return fmt.Errorf("muc: subscribe: %w", err)
	}
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			m.logger.Warn("muc: subscription ended", "error", err)
			return err
		}
		m.handle(evt)
	}
}

func (m *Manager) handle(evt eventbus.Event) {
	switch p := evt.Payload.(type) {
	case eventbus.MucJoined:
		m.mu.Lock()
		m.joined[p.Room] = true
		m.mu.Unlock()
		if existing, err := m.store.Occupants(p.Room); err == nil {
			for _, occ := range existing {
				occ.Role = eventbus.MucRoleNone
				_ = m.store.UpsertOccupant(p.Room, occ)
			}
		}
	case eventbus.MucLeft:
		m.mu.Lock()
		delete(m.joined, p.Room)
		m.mu.Unlock()
		if err := m.store.RecordLeave(p.Room); err != nil {
			m.logger.Error("muc: record leave failed", "room", p.Room, "error", err)
		}
	case eventbus.MucOccupantChanged:
		if err := m.store.UpsertOccupant(p.Room, p.Occupant); err != nil {
			m.logger.Error("muc: upsert occupant failed", "room", p.Room, "error", err)
		}
	case eventbus.MucSubjectChanged:
		if err := m.store.SetSubject(p.Room, p.Subject); err != nil {
			m.logger.Error("muc: set subject failed", "room", p.Room, "error", err)
		}
	case eventbus.MucMessageReceived:
		if err := m.store.SaveGroupMessage(p.Room, p.Message); err != nil {
			m.logger.Error("muc: persist message failed", "room", p.Room, "error", err)
		}
	}
}

// JoinRoom persists the intended join and requests it from the server.
func (m *Manager) JoinRoom(room, nick string) error {
	if err := m.store.RecordJoin(room, nick); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	m.publish(eventbus.ChMucJoin, eventbus.MucJoinRequested{Room: room, Nick: nick})
	return nil
}

// SendMessage requests a groupchat send. Unlike 1:1 messaging, this is
// never buffered offline: MUC presence is required regardless.
func (m *Manager) SendMessage(room, body string) {
	m.publish(eventbus.ChMucSend, eventbus.MucSendRequested{Room: room, Body: body})
}

// GetOccupants returns every occupant currently recorded for room.
func (m *Manager) GetOccupants(room string) ([]eventbus.MucOccupant, error) {
	occs, err := m.store.Occupants(room)
	if err != nil {
		return nil, fmt.Errorf("get occupants: %w", err)
	}
	return occs, nil
}

// GetJoinedRooms returns the set of rooms currently joined.
func (m *Manager) GetJoinedRooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.joined))
	for room, joined := range m.joined {
		if joined {
			out = append(out, room)
		}
	}
	return out
}

// GetRoomMessages mirrors the 1:1 pagination for a room's message
// history. When beforeID is non-empty it pages backward through
// history strictly older than that message.
func (m *Manager) GetRoomMessages(room string, limit int, beforeID string) ([]eventbus.ChatMessage, error) {
	msgs, err := m.store.ConversationMessages(room, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("get room messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (m *Manager) publish(ch eventbus.Channel, payload eventbus.Payload) {
	evt := eventbus.NewEvent(ch, eventbus.SystemSource("muc"), payload)
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Error("muc: publish failed", "channel", ch.String(), "error", err)
	}
}
