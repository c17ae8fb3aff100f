package presence

import (
	"context"
	"testing"
	"time"

	"github.com/waddle-social/app/internal/eventbus"
)

func runManager(t *testing.T, m *Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	return cancel
}

func TestBareJID(t *testing.T) {
	cases := map[string]string{
		"alice@example.com/phone": "alice@example.com",
		"alice@example.com":       "alice@example.com",
	}
	for in, want := range cases {
		if got := BareJID(in); got != want {
			t.Errorf("BareJID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRosterReceivedTriggersExactlyOneInitialPresence(t *testing.T) {
	bus := eventbus.New(64)
	m := New(bus, nil)
	sub, err := bus.Subscribe("ui.presence.set")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	established := eventbus.NewEvent(eventbus.ChConnectionEstablished, eventbus.XmppSource, eventbus.ConnectionEstablished{JID: "alice@ex.com"})
	if err := bus.Publish(ctx, established); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	received := eventbus.NewEvent(eventbus.ChRosterReceived, eventbus.XmppSource, eventbus.RosterReceived{Items: nil})
	if err := bus.Publish(ctx, received); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	evt, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("expected ui.presence.set, got error: %v", err)
	}
	set, ok := evt.Payload.(eventbus.PresenceSetRequested)
	if !ok || set.Show != eventbus.PresenceAvailable {
		t.Fatalf("payload = %+v, want PresenceSetRequested{Show: available}", evt.Payload)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer recvCancel()
	if _, err := sub.Recv(recvCtx); err == nil {
		t.Fatal("expected exactly one ui.presence.set, got a second")
	}

	if m.GetOwnPresence().Show != eventbus.PresenceAvailable {
		t.Fatalf("GetOwnPresence().Show = %v, want available", m.GetOwnPresence().Show)
	}
}

func TestConnectionEstablishedDoesNotEmitPresenceDirectly(t *testing.T) {
	bus := eventbus.New(64)
	m := New(bus, nil)
	sub, err := bus.Subscribe("ui.presence.set")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	established := eventbus.NewEvent(eventbus.ChConnectionEstablished, eventbus.XmppSource, eventbus.ConnectionEstablished{JID: "alice@ex.com"})
	if err := bus.Publish(ctx, established); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer recvCancel()
	if _, err := sub.Recv(recvCtx); err == nil {
		t.Fatal("expected no ui.presence.set before RosterReceived")
	}
}

func TestPresenceChangedUpsertsByBareJID(t *testing.T) {
	bus := eventbus.New(64)
	m := New(bus, nil)
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt := eventbus.NewEvent(eventbus.ChPresenceChanged, eventbus.XmppSource, eventbus.PresenceChanged{
		JID: "bob@example.com/phone", Show: eventbus.PresenceAway, Priority: 5,
	})
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	got := m.GetPresence("bob@example.com/laptop")
	if got.Show != eventbus.PresenceAway || got.Priority != 5 {
		t.Fatalf("GetPresence(other resource) = %+v, want matching bare-jid entry", got)
	}
	if got != m.GetPresence("bob@example.com") {
		t.Fatalf("GetPresence must be resource-independent")
	}
}

func TestConnectionLostClearsContactsAndOwnPresence(t *testing.T) {
	bus := eventbus.New(64)
	m := New(bus, nil)
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = bus.Publish(ctx, eventbus.NewEvent(eventbus.ChPresenceChanged, eventbus.XmppSource, eventbus.PresenceChanged{JID: "bob@example.com", Show: eventbus.PresenceChat}))
	time.Sleep(20 * time.Millisecond)

	_ = bus.Publish(ctx, eventbus.NewEvent(eventbus.ChConnectionLost, eventbus.SystemSource("connection"), eventbus.ConnectionLost{Reason: "network"}))
	time.Sleep(20 * time.Millisecond)

	if m.GetOwnPresence().Show != eventbus.PresenceUnavailable {
		t.Fatalf("own presence = %v, want unavailable after ConnectionLost", m.GetOwnPresence().Show)
	}
	if got := m.GetPresence("bob@example.com"); got.Show != "" {
		t.Fatalf("contact presence = %+v, want cleared after ConnectionLost", got)
	}
}
