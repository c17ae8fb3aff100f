package message

import (
	"context"
	"testing"
	"time"

	"github.com/waddle-social/app/internal/eventbus"
	"github.com/waddle-social/app/internal/waddlestore"
)

func newTestManager(t *testing.T) (*Manager, *eventbus.Bus, *waddlestore.Store) {
	t.Helper()
	store, err := waddlestore.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	bus := eventbus.New(64)
	return New(bus, store, "alice@x", nil), bus, store
}

func runManager(t *testing.T, m *Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	return cancel
}

func TestOfflineDrainOrder(t *testing.T) {
	m, bus, store := newTestManager(t)
	sub, err := bus.Subscribe("ui.message.send")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer runManager(t, m)()

	first, err := m.SendMessage("bob@x", "first")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	second, err := m.SendMessage("carol@x", "second")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt := eventbus.NewEvent(eventbus.ChConnectionEstablished, eventbus.XmppSource, eventbus.ConnectionEstablished{JID: "alice@x"})
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got1, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	got2, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	r1 := got1.Payload.(eventbus.MessageSendRequested)
	r2 := got2.Payload.(eventbus.MessageSendRequested)
	if r1.Body != "first" || r2.Body != "second" {
		t.Fatalf("drain order = [%q, %q], want [first, second]", r1.Body, r2.Body)
	}

	time.Sleep(30 * time.Millisecond)
	pending, err := store.PendingQueue()
	if err != nil {
		t.Fatalf("PendingQueue: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty pending queue after drain, got %+v", pending)
	}
	_ = first
	_ = second
}

func TestThreeConfirmationPaths(t *testing.T) {
	m, bus, store := newTestManager(t)
	defer runManager(t, m)()

	if err := store.Enqueue("M1", "bob@x", "first", waddlestore.StanzaMessage); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := store.SetQueueStatus("M1", waddlestore.QueueSent); err != nil {
		t.Fatalf("SetQueueStatus: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	delivered := eventbus.NewEvent(eventbus.ChMessageDelivered, eventbus.XmppSource, eventbus.MessageDelivered{ID: "M1", To: "bob@x"})
	if err := bus.Publish(ctx, delivered); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	pending, _ := store.PendingQueue()
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows, got %+v", pending)
	}

	// Independently: a second, still-pending row with its own id, confirmed
	// via a MAM result carrying that id.
	if err := store.Enqueue("M1-other-row", "bob@x", "first-again", waddlestore.StanzaMessage); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	mamEvt := eventbus.NewEvent(eventbus.ChMamResultReceived, eventbus.XmppSource, eventbus.MamResultReceived{
		Messages: []eventbus.ChatMessage{{ID: "M1-other-row", From: "alice@x", To: "bob@x", Body: "first"}},
		Complete: true,
	})
	if err := bus.Publish(ctx, mamEvt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	pending, _ = store.PendingQueue()
	if len(pending) != 0 {
		t.Fatalf("expected MAM result to confirm the pending row, got %+v", pending)
	}
}

func TestSendMessageOfflineStaysPending(t *testing.T) {
	m, _, store := newTestManager(t)
	if _, err := m.SendMessage("bob@x", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	pending, err := store.PendingQueue()
	if err != nil {
		t.Fatalf("PendingQueue: %v", err)
	}
	if len(pending) != 1 || pending[0].Status != waddlestore.QueuePending {
		t.Fatalf("pending = %+v, want one pending row", pending)
	}
}

func TestEchoAfterConfirmDoesNotRegress(t *testing.T) {
	m, bus, store := newTestManager(t)
	defer runManager(t, m)()

	if err := store.Enqueue("M2", "bob@x", "race", waddlestore.StanzaMessage); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	mamEvt := eventbus.NewEvent(eventbus.ChMamResultReceived, eventbus.XmppSource, eventbus.MamResultReceived{
		Messages: []eventbus.ChatMessage{{ID: "M2", From: "alice@x", To: "bob@x", Body: "race"}},
		Complete: true,
	})
	if err := bus.Publish(ctx, mamEvt); err != nil {
		t.Fatalf("Publish mam: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	// The server echo for the same id arrives after MAM already
	// confirmed it; it must not regress the row back to sent.
	echo := eventbus.NewEvent(eventbus.ChMessageSent, eventbus.XmppSource, eventbus.MessageSent{
		Message: eventbus.ChatMessage{ID: "M2", From: "alice@x", To: "bob@x", Body: "race"},
	})
	if err := bus.Publish(ctx, echo); err != nil {
		t.Fatalf("Publish echo: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	pending, err := store.PendingQueue()
	if err != nil {
		t.Fatalf("PendingQueue: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows (confirmed should not regress to sent), got %+v", pending)
	}
}

func TestGetMessagesBeforeIDPagination(t *testing.T) {
	m, _, store := newTestManager(t)

	base := time.Now().UTC()
	for i, id := range []string{"p1", "p2", "p3"} {
		msg := eventbus.ChatMessage{
			ID: id, From: "bob@x", To: "alice@x", Body: id,
			Timestamp: base.Add(time.Duration(i) * time.Second), MessageType: eventbus.MessageChat,
		}
		if err := store.SaveMessage(msg, "alice@x"); err != nil {
			t.Fatalf("SaveMessage(%s): %v", id, err)
		}
	}

	msgs, err := m.GetMessages("bob@x", 10, "p3")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "p2" || msgs[1].ID != "p1" {
		t.Fatalf("GetMessages(before=p3) = %+v, want [p2 p1]", msgs)
	}
}

func TestRosterAddQueuedOfflineThenDrainedOnReconnect(t *testing.T) {
	m, bus, store := newTestManager(t)
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	addSub, err := bus.Subscribe(eventbus.ChRosterAdd.String())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	req := eventbus.NewEvent(eventbus.ChRosterAdd, eventbus.UiSource(eventbus.UiTui), eventbus.RosterAddRequested{
		JID: "carol@x", Name: "Carol", Groups: []string{"friends"},
	})
	if err := bus.Publish(ctx, req); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Drain the manager's own subscription copy of the request it just sent.
	if _, err := addSub.Recv(ctx); err != nil {
		t.Fatalf("Recv original request: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	pending, err := store.PendingQueue()
	if err != nil {
		t.Fatalf("PendingQueue: %v", err)
	}
	if len(pending) != 1 || pending[0].StanzaType != waddlestore.StanzaIQ {
		t.Fatalf("pending = %+v, want one queued iq row", pending)
	}

	established := eventbus.NewEvent(eventbus.ChConnectionEstablished, eventbus.XmppSource, eventbus.ConnectionEstablished{JID: "alice@x"})
	if err := bus.Publish(ctx, established); err != nil {
		t.Fatalf("Publish established: %v", err)
	}

	replayed, err := addSub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv replay: %v", err)
	}
	replay := replayed.Payload.(eventbus.RosterAddRequested)
	if replay.JID != "carol@x" || replay.Name != "Carol" {
		t.Fatalf("replayed roster add = %+v, want carol@x/Carol", replay)
	}

	time.Sleep(30 * time.Millisecond)
	pending, _ = store.PendingQueue()
	if len(pending) != 0 {
		t.Fatalf("expected queued roster add confirmed after drain, got %+v", pending)
	}
}

func TestMessageReceivedPersistsIdempotently(t *testing.T) {
	m, bus, store := newTestManager(t)
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := eventbus.ChatMessage{ID: "in-1", From: "bob@x", To: "alice@x", Body: "hi", Timestamp: time.Now(), MessageType: eventbus.MessageChat}
	evt := eventbus.NewEvent(eventbus.ChMessageReceived, eventbus.XmppSource, eventbus.MessageReceived{Message: msg})
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish (replay): %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	msgs, err := store.ConversationMessages("bob@x", 10, "")
	if err != nil {
		t.Fatalf("ConversationMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one persisted message, got %d", len(msgs))
	}
}
