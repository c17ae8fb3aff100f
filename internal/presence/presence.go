// Package presence tracks own and per-contact presence, gating the
// initial presence broadcast on roster arrival per the corrected
// connection→roster→presence ordering (see DESIGN.md).
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/waddle-social/app/internal/eventbus"
)

// Manager owns own presence and the bare-jid → PresenceInfo contact map.
type Manager struct {
	bus    *eventbus.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	own      eventbus.PresenceChanged
	ownJID   string
	contacts map[string]eventbus.PresenceChanged
}

// New constructs a Manager with own presence initially unavailable.
func New(bus *eventbus.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:      bus,
		logger:   logger,
		own:      eventbus.PresenceChanged{Show: eventbus.PresenceUnavailable},
		contacts: make(map[string]eventbus.PresenceChanged),
	}
}

// BareJID strips the resource from a full JID, e.g. "a@b.com/res" -> "a@b.com".
func BareJID(jid string) string {
	if i := strings.IndexByte(jid, '/'); i >= 0 {
		return jid[:i]
	}
	return jid
}

// Run subscribes to every channel the presence manager reacts to and
// processes events strictly sequentially.
func (m *Manager) Run(ctx context.Context) error {
	sub, err := m.bus.Subscribe("**")
	if err != nil {
		return fmt.Errorf("presence: subscribe: %w", err)
	}
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			m.logger.Warn("presence: subscription ended", "error", err)
			return err
		}
		m.handle(evt)
	}
}

func (m *Manager) handle(evt eventbus.Event) {
	switch p := evt.Payload.(type) {
	case eventbus.ConnectionEstablished:
		m.mu.Lock()
		m.ownJID = p.JID
		m.own = eventbus.PresenceChanged{JID: p.JID, Show: eventbus.PresenceUnavailable}
		m.contacts = make(map[string]eventbus.PresenceChanged)
		m.mu.Unlock()

	case eventbus.RosterReceived:
		m.mu.Lock()
		m.own.Show = eventbus.PresenceAvailable
		m.mu.Unlock()
		// The transport (faketransport in this module) is responsible for
		// echoing xmpp.presence.own_changed once the request lands; the core
		// never synthesizes xmpp.* events itself.
		m.publish(eventbus.ChPresenceSet, eventbus.PresenceSetRequested{Show: eventbus.PresenceAvailable})

	case eventbus.ConnectionLost:
		m.mu.Lock()
		m.contacts = make(map[string]eventbus.PresenceChanged)
		m.own.Show = eventbus.PresenceUnavailable
		m.mu.Unlock()

	case eventbus.PresenceChanged:
		bare := BareJID(p.JID)
		m.mu.Lock()
		m.contacts[bare] = eventbus.PresenceChanged{JID: bare, Show: p.Show, Status: p.Status, Priority: p.Priority}
		m.mu.Unlock()

	case eventbus.OwnPresenceChanged:
		m.mu.Lock()
		m.own.Show = p.Show
		m.own.Status = p.Status
		m.mu.Unlock()
	}
}

// SetOwnPresence updates own in-memory presence and emits ui.presence.set.
func (m *Manager) SetOwnPresence(show eventbus.PresenceShow, status string) {
	m.mu.Lock()
	m.own.Show = show
	m.own.Status = status
	m.mu.Unlock()
	m.publish(eventbus.ChPresenceSet, eventbus.PresenceSetRequested{Show: show, Status: status})
}

// GetPresence returns the presence recorded for jid's bare form, or the
// zero PresenceChanged (show="") if unknown. Per spec.md §8,
// GetPresence(j) == GetPresence(bare_jid(j)) for any j.
func (m *Manager) GetPresence(jid string) eventbus.PresenceChanged {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contacts[BareJID(jid)]
}

// GetOwnPresence returns own presence.
func (m *Manager) GetOwnPresence() eventbus.PresenceChanged {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.own
}

func (m *Manager) publish(ch eventbus.Channel, payload eventbus.Payload) {
	evt := eventbus.NewEvent(ch, eventbus.SystemSource("presence"), payload)
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Error("presence: publish failed", "channel", ch.String(), "error", err)
	}
}
