// Package mam implements Message Archive Management paginated catch-up,
// driven entirely over the event bus and correlated via query_id, fixing
// the original's collector (which accepted any xmpp.mam.* response
// regardless of which query it belonged to) and its dual-trigger bug
// (ConnectionEstablished no longer fires sync_since directly; only a
// roster-gated OwnPresenceChanged does).
package mam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/waddle-social/app/internal/eventbus"
	"github.com/waddle-social/app/internal/waddlestore"
)

// pageSize is the number of messages requested per MAM query.
const pageSize = 50

// collectorTimeout bounds how long a single page's collection may take
// before the sync aborts.
const collectorTimeout = 30 * time.Second

// TimeoutError is returned when the result collector does not see a fin
// marker, or a result flagged complete, for its query within
// collectorTimeout.
type TimeoutError struct{ Seconds int }

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mam: collector timed out after %ds", e.Seconds)
}

// Manager drives MAM catch-up synchronization.
type Manager struct {
	bus    *eventbus.Bus
	store  *waddlestore.Store
	logger *slog.Logger
	ownJID string
}

// New constructs a Manager for the account identified by ownJID.
func New(bus *eventbus.Bus, store *waddlestore.Store, ownJID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{bus: bus, store: store, ownJID: ownJID, logger: logger}
}

// Run subscribes to the triggering channels and dispatches sync/fetch
// operations. Each operation runs in its own goroutine so a slow or
// stuck collector cannot stall the manager's event loop.
func (m *Manager) Run(ctx context.Context) error {
	sub, err := m.bus.Subscribe("**")
	if err != nil {
		return fmt.Errorf("mam: subscribe: %w", err)
	}
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			m.logger.Warn("mam: subscription ended", "error", err)
			return err
		}
		switch p := evt.Payload.(type) {
		case eventbus.OwnPresenceChanged:
			if p.Show == eventbus.PresenceUnavailable {
				continue
			}
			go func() {
				if err := m.SyncSince(ctx); err != nil {
					m.logger.Error("mam: sync failed", "error", err)
				}
			}()
		case eventbus.ScrollRequested:
			if p.Direction != eventbus.ScrollUp {
				continue
			}
			go func() {
				if err := m.FetchHistory(ctx, p.JID); err != nil {
					m.logger.Error("mam: fetch history failed", "jid", p.JID, "error", err)
				}
			}()
		}
	}
}

// SyncSince runs the full paginated catch-up loop, resuming from the
// persisted global cursor. Each page subscribes before the query is
// published so a synchronous transport reply can't arrive unobserved.
func (m *Manager) SyncSince(ctx context.Context) error {
	after, err := m.store.SyncState(waddlestore.GlobalJID)
	if err != nil && err != waddlestore.ErrNoSyncState {
		return fmt.Errorf("mam: sync_since: %w", err)
	}

	correlationID := uuid.New()
	m.publishCorrelated(eventbus.ChSyncStarted, eventbus.SyncStarted{}, correlationID)

	var total uint64
	for {
		queryID := uuid.New().String()
		sub, err := m.bus.Subscribe("xmpp.mam.**")
		if err != nil {
			return fmt.Errorf("mam: sync_since: %w", err)
		}
		m.publish(eventbus.ChMamQuery, eventbus.MamQueryRequested{QueryID: queryID, After: after, Max: pageSize})

		messages, complete, lastID, err := m.collectPage(ctx, sub, queryID)
		if err != nil {
			return fmt.Errorf("mam: sync_since: %w", err)
		}

		for _, msg := range messages {
			if err := m.store.SaveMessage(msg, m.ownJID); err != nil {
				m.logger.Error("mam: persist archived message failed", "id", msg.ID, "error", err)
				continue
			}
			total++
		}

		if lastID != "" {
			after = lastID
			if err := m.store.SetSyncState(waddlestore.GlobalJID, lastID); err != nil {
				m.logger.Error("mam: set sync state failed", "error", err)
			}
		}

		if complete || len(messages) == 0 {
			break
		}
	}

	m.publishCorrelated(eventbus.ChSyncCompleted, eventbus.SyncCompleted{MessagesSynced: total}, correlationID)
	return nil
}

// FetchHistory fetches one page of history before the oldest known
// message for jid, in response to a backward ScrollRequested.
func (m *Manager) FetchHistory(ctx context.Context, jid string) error {
	before, err := m.store.OldestMessageID(jid)
	if err != nil && err != waddlestore.ErrNoMessages {
		return fmt.Errorf("mam: fetch_history: %w", err)
	}

	queryID := uuid.New().String()
	sub, err := m.bus.Subscribe("xmpp.mam.**")
	if err != nil {
		return fmt.Errorf("mam: fetch_history: %w", err)
	}
	m.publish(eventbus.ChMamQuery, eventbus.MamQueryRequested{QueryID: queryID, Before: before, Max: pageSize})

	messages, _, _, err := m.collectPage(ctx, sub, queryID)
	if err != nil {
		return fmt.Errorf("mam: fetch_history: %w", err)
	}
	for _, msg := range messages {
		if err := m.store.SaveMessage(msg, m.ownJID); err != nil {
			m.logger.Error("mam: persist history page failed", "id", msg.ID, "error", err)
		}
	}
	return nil
}

// collectPage gathers MamResultReceived messages and the MamFinReceived
// marker for exactly queryID off sub, discarding responses that belong
// to a different, concurrently running query. sub must already be
// subscribed to xmpp.mam.** before the triggering query was published,
// so a synchronous transport reply cannot be missed.
func (m *Manager) collectPage(ctx context.Context, sub *eventbus.Subscription, queryID string) ([]eventbus.ChatMessage, bool, string, error) {
	deadline, cancel := context.WithTimeout(ctx, collectorTimeout)
	defer cancel()

	var messages []eventbus.ChatMessage
	var lastID string
	for {
		evt, err := sub.Recv(deadline)
		if err != nil {
			if deadline.Err() != nil && ctx.Err() == nil {
				return messages, false, lastID, &TimeoutError{Seconds: int(collectorTimeout.Seconds())}
			}
			return messages, false, lastID, fmt.Errorf("collect page: %w", err)
		}

		switch p := evt.Payload.(type) {
		case eventbus.MamResultReceived:
			if p.QueryID != queryID {
				continue
			}
			messages = append(messages, p.Messages...)
			if len(p.Messages) > 0 {
				lastID = p.Messages[len(p.Messages)-1].ID
			}
			if p.Complete {
				return messages, true, lastID, nil
			}
		case eventbus.MamFinReceived:
			if p.QueryID != queryID {
				continue
			}
			if p.LastID != "" {
				lastID = p.LastID
			}
			return messages, p.Complete, lastID, nil
		default:
			// not a MAM payload we act on; ignore
		}
	}
}

func (m *Manager) publish(ch eventbus.Channel, payload eventbus.Payload) {
	evt := eventbus.NewEvent(ch, eventbus.SystemSource("mam"), payload)
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Error("mam: publish failed", "channel", ch.String(), "error", err)
	}
}

func (m *Manager) publishCorrelated(ch eventbus.Channel, payload eventbus.Payload, correlationID uuid.UUID) {
	evt := eventbus.WithCorrelation(ch, eventbus.SystemSource("mam"), payload, correlationID)
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Error("mam: publish failed", "channel", ch.String(), "error", err)
	}
}
