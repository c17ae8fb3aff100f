// Package faketransport is an in-process stand-in for the real XMPP wire
// transport (TLS + SASL + XML streams), which is explicitly out of
// scope for this module. It implements connection.Transport and, once
// connected, answers ui.* requests on the bus with the xmpp.* events a
// real server would eventually produce, so the rest of the core can be
// driven end to end without a network.
package faketransport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waddle-social/app/internal/connection"
	"github.com/waddle-social/app/internal/eventbus"
)

var _ connection.Transport = (*Transport)(nil)

// Transport simulates a connected XMPP server. fail, when non-nil (see
// SetFail), is returned once by the next Connect instead of succeeding,
// letting tests exercise the connection manager's retry/backoff path.
type Transport struct {
	bus    *eventbus.Bus
	logger *slog.Logger
	roster []eventbus.RosterItem
	fail   error

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New constructs a Transport that will report the given roster once
// ui.roster.fetch is requested after connecting.
func New(bus *eventbus.Bus, roster []eventbus.RosterItem, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{bus: bus, roster: roster, logger: logger}
}

// SetFail makes the next Connect call fail with err instead of
// succeeding, for exercising the connection manager's retry path.
func (t *Transport) SetFail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = err
}

// Connect starts the fake server loop and, on success, begins answering
// ui.* requests until Close is called.
func (t *Transport) Connect(ctx context.Context, cfg connection.Config) error {
	t.mu.Lock()
	fail := t.fail
	t.fail = nil
	t.mu.Unlock()
	if fail != nil {
		return fail
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.serve(runCtx, cfg.JID)
	return nil
}

// Close stops the fake server loop.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

// serve answers ui.* requests on the bus as a real server would.
func (t *Transport) serve(ctx context.Context, ownJID string) {
	sub, err := t.bus.Subscribe("ui.**")
	if err != nil {
		t.logger.Error("faketransport: subscribe failed", "error", err)
		return
	}
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		t.handle(evt, ownJID)
	}
}

func (t *Transport) handle(evt eventbus.Event, ownJID string) {
	switch p := evt.Payload.(type) {
	case eventbus.RosterFetchRequested:
		t.publish(eventbus.ChRosterReceived, eventbus.RosterReceived{Items: t.roster})
	case eventbus.RosterAddRequested:
		t.publish(eventbus.ChRosterUpdated, eventbus.RosterUpdated{
			Item: eventbus.RosterItem{JID: p.JID, Name: p.Name, Groups: p.Groups, Subscription: eventbus.SubNone},
		})
	case eventbus.PresenceSetRequested:
		t.publish(eventbus.ChOwnPresenceChanged, eventbus.OwnPresenceChanged{Show: p.Show, Status: p.Status})
	case eventbus.MessageSendRequested:
		t.publish(eventbus.ChMessageSent, eventbus.MessageSent{Message: eventbus.ChatMessage{
			ID: p.ID, From: ownJID, To: p.To, Body: p.Body, Timestamp: time.Now(), MessageType: eventbus.MessageChat,
		}})
	case eventbus.ChatStateSendRequested:
		t.publish(eventbus.ChChatStateReceived, eventbus.ChatStateReceived{From: ownJID, State: p.State})
	case eventbus.MucJoinRequested:
		t.publish(eventbus.ChMucJoined, eventbus.MucJoined{Room: p.Room, Nick: p.Nick})
	case eventbus.MucSendRequested:
		t.publish(eventbus.ChMucMessageReceived, eventbus.MucMessageReceived{
			Room: p.Room,
			Message: eventbus.ChatMessage{
				ID: uuid.New().String(), From: p.Room + "/" + "me", To: p.Room, Body: p.Body,
				Timestamp: time.Now(), MessageType: eventbus.MessageGroupchat,
			},
		})
	case eventbus.MamQueryRequested:
		// An empty archive: immediately complete, no messages.
		t.publish(eventbus.ChMamFinReceived, eventbus.MamFinReceived{QueryID: p.QueryID, Complete: true})
	}
}

func (t *Transport) publish(ch eventbus.Channel, payload eventbus.Payload) {
	evt := eventbus.NewEvent(ch, eventbus.XmppSource, payload)
	if err := t.bus.Publish(context.Background(), evt); err != nil {
		t.logger.Error("faketransport: publish failed", "channel", ch.String(), "error", err)
	}
}
