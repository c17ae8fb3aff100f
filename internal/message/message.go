// Package message implements 1:1 chat send/receive, the offline queue,
// and its triple-path delivery reconciliation (server echo, delivery
// receipt, MAM archive result).
package message

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waddle-social/app/internal/eventbus"
	"github.com/waddle-social/app/internal/waddlestore"
)

// Manager owns outbound message gating on connection state and offline
// queue reconciliation.
type Manager struct {
	bus    *eventbus.Bus
	store  *waddlestore.Store
	logger *slog.Logger
	ownJID string

	mu     sync.RWMutex
	online bool
}

// New constructs a Manager for the account identified by ownJID.
func New(bus *eventbus.Bus, store *waddlestore.Store, ownJID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{bus: bus, store: store, ownJID: ownJID, logger: logger}
}

// Run subscribes to every channel the message manager reacts to and
// processes events strictly sequentially.
func (m *Manager) Run(ctx context.Context) error {
	sub, err := m.bus.Subscribe("**")
	if err != nil {
		return fmt.Errorf("message: subscribe: %w", err)
	}
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			m.logger.Warn("message: subscription ended", "error", err)
			return err
		}
		m.handle(evt)
	}
}

func (m *Manager) handle(evt eventbus.Event) {
	switch p := evt.Payload.(type) {
	case eventbus.ConnectionEstablished:
		m.onConnectionEstablished()
	case eventbus.ConnectionLost:
		m.onConnectionLost()
	case eventbus.MessageSent:
		m.onMessageSent(p)
	case eventbus.MessageDelivered:
		m.onMessageDelivered(p)
	case eventbus.MamResultReceived:
		m.onMamResultReceived(p)
	case eventbus.MessageReceived:
		m.onMessageReceived(p)
	case eventbus.ChatStateReceived:
		m.logger.Debug("chat state received", "from", p.From, "state", p.State)
	case eventbus.RosterAddRequested:
		if !m.isOnline() {
			m.enqueueRosterAdd(p)
		}
	}
}

// rosterAddPayload is the JSON body an offline ui.roster.add command is
// held as in the offline queue, since the queue's body column is a
// free-form string shared by every stanza_type.
type rosterAddPayload struct {
	Name   string
	Groups []string
}

// enqueueRosterAdd holds a roster add requested while offline so it can
// be replayed once the connection is reestablished.
func (m *Manager) enqueueRosterAdd(p eventbus.RosterAddRequested) {
	body, err := json.Marshal(rosterAddPayload{Name: p.Name, Groups: p.Groups})
	if err != nil {
		m.logger.Error("message: encode roster add failed", "jid", p.JID, "error", err)
		return
	}
	id := uuid.New().String()
	if err := m.store.Enqueue(id, p.JID, string(body), waddlestore.StanzaIQ); err != nil {
		m.logger.Error("message: enqueue roster add failed", "jid", p.JID, "error", err)
	}
}

// SendMessage allocates an ID, persists the message, enqueues it, and
// emits ui.message.send immediately if online.
func (m *Manager) SendMessage(to, body string) (eventbus.ChatMessage, error) {
	id := uuid.New().String()
	msg := eventbus.ChatMessage{
		ID: id, From: m.ownJID, To: to, Body: body,
		Timestamp: time.Now().UTC(), MessageType: eventbus.MessageChat,
	}

	if err := m.store.SaveMessage(msg, m.ownJID); err != nil {
		return msg, fmt.Errorf("send message: %w", err)
	}
	if err := m.store.Enqueue(id, to, body, waddlestore.StanzaMessage); err != nil {
		return msg, fmt.Errorf("send message: %w", err)
	}

	if m.isOnline() {
		m.publish(eventbus.ChMessageSend, eventbus.MessageSendRequested{ID: id, To: to, Body: body})
		if err := m.store.MarkSentIfPending(id); err != nil {
			m.logger.Error("message: mark sent failed", "id", id, "error", err)
		}
	}
	return msg, nil
}

// SendChatState emits a chat state notification; never buffered offline.
func (m *Manager) SendChatState(to string, state eventbus.ChatState) {
	m.publish(eventbus.ChChatStateSend, eventbus.ChatStateSendRequested{To: to, State: state})
}

func (m *Manager) isOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Manager) onConnectionEstablished() {
	m.mu.Lock()
	m.online = true
	m.mu.Unlock()

	m.publish(eventbus.ChComingOnline, eventbus.ComingOnline{})
	m.drainQueue()
}

func (m *Manager) onConnectionLost() {
	m.mu.Lock()
	m.online = false
	m.mu.Unlock()
	m.publish(eventbus.ChGoingOffline, eventbus.GoingOffline{})
}

// drainQueue emits each pending queue row in enqueue order (the store
// returns them ordered by created_at; row ids are random UUIDs and carry
// no order). A drained message still waits on the echo/
// receipt/MAM reconciliation paths to confirm; a drained iq or presence
// command has no such path and confirms immediately.
func (m *Manager) drainQueue() {
	pending, err := m.store.PendingQueue()
	if err != nil {
		m.logger.Error("message: drain queue failed", "error", err)
		return
	}
	for _, q := range pending {
		switch q.StanzaType {
		case waddlestore.StanzaIQ:
			m.drainRosterAdd(q)
		default:
			m.publish(eventbus.ChMessageSend, eventbus.MessageSendRequested{ID: q.ID, To: q.To, Body: q.Body})
			if err := m.store.MarkSentIfPending(q.ID); err != nil {
				m.logger.Error("message: mark sent failed", "id", q.ID, "error", err)
			}
		}
	}
}

func (m *Manager) drainRosterAdd(q waddlestore.QueuedMessage) {
	var payload rosterAddPayload
	if err := json.Unmarshal([]byte(q.Body), &payload); err != nil {
		m.logger.Error("message: decode roster add failed", "id", q.ID, "error", err)
		return
	}
	m.publish(eventbus.ChRosterAdd, eventbus.RosterAddRequested{JID: q.To, Name: payload.Name, Groups: payload.Groups})
	if err := m.store.SetQueueStatus(q.ID, waddlestore.QueueConfirmed); err != nil {
		m.logger.Error("message: mark confirmed failed", "id", q.ID, "error", err)
	}
}

// onMessageSent handles the server-echo reconciliation path: dedup-
// persist the echoed message, and advance its queue row to sent only if
// still pending. A delivery receipt or MAM result may have already
// confirmed the row; the three paths form a monotonic ratchet and must
// never regress a confirmed row back to sent regardless of arrival order.
func (m *Manager) onMessageSent(p eventbus.MessageSent) {
	if err := m.store.SaveMessage(p.Message, m.ownJID); err != nil {
		m.logger.Error("message: persist echo failed", "id", p.Message.ID, "error", err)
	}
	if err := m.store.MarkSentIfPending(p.Message.ID); err != nil {
		m.logger.Error("message: echo reconcile failed", "id", p.Message.ID, "error", err)
	}
}

// onMessageDelivered handles the explicit delivery-receipt reconciliation
// path.
func (m *Manager) onMessageDelivered(p eventbus.MessageDelivered) {
	if err := m.store.SetQueueStatus(p.ID, waddlestore.QueueConfirmed); err != nil {
		m.logger.Error("message: delivery reconcile failed", "id", p.ID, "error", err)
	}
}

// onMamResultReceived handles the MAM-archive reconciliation path: any
// archived message whose id matches a queued row we authored confirms
// it, covering the case where neither echo nor receipt arrived.
func (m *Manager) onMamResultReceived(p eventbus.MamResultReceived) {
	for _, archived := range p.Messages {
		if archived.From != m.ownJID {
			continue
		}
		if err := m.store.SetQueueStatus(archived.ID, waddlestore.QueueConfirmed); err != nil {
			m.logger.Error("message: mam reconcile failed", "id", archived.ID, "error", err)
		}
	}
}

func (m *Manager) onMessageReceived(p eventbus.MessageReceived) {
	if err := m.store.SaveMessage(p.Message, m.ownJID); err != nil {
		m.logger.Error("message: persist received failed", "id", p.Message.ID, "error", err)
	}
}

// GetMessages returns at most limit messages with peerJID, newest first.
// When beforeID is non-empty it pages backward through history strictly
// older than that message.
func (m *Manager) GetMessages(peerJID string, limit int, beforeID string) ([]eventbus.ChatMessage, error) {
	msgs, err := m.store.ConversationMessages(peerJID, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (m *Manager) publish(ch eventbus.Channel, payload eventbus.Payload) {
	evt := eventbus.NewEvent(ch, eventbus.SystemSource("message"), payload)
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Error("message: publish failed", "channel", ch.String(), "error", err)
	}
}
