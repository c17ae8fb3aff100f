package muc

import (
	"context"
	"testing"
	"time"

	"github.com/waddle-social/app/internal/eventbus"
	"github.com/waddle-social/app/internal/waddlestore"
)

func newTestManager(t *testing.T) (*Manager, *eventbus.Bus) {
	t.Helper()
	store, err := waddlestore.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	bus := eventbus.New(64)
	return New(bus, store, "alice@x", nil), bus
}

func runManager(t *testing.T, m *Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	return cancel
}

func TestMucLifecycleScenario(t *testing.T) {
	m, bus := newTestManager(t)
	defer runManager(t, m)()

	room := "r@conf"
	if err := m.JoinRoom(room, "Alice"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	joined := eventbus.NewEvent(eventbus.ChMucJoined, eventbus.XmppSource, eventbus.MucJoined{Room: room, Nick: "Alice"})
	if err := bus.Publish(ctx, joined); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	bobJoin := eventbus.NewEvent(eventbus.ChMucOccupantChanged, eventbus.XmppSource, eventbus.MucOccupantChanged{
		Room: room, Occupant: eventbus.MucOccupant{Nick: "Bob", Affiliation: eventbus.MucAffiliationMember, Role: eventbus.MucRoleParticipant},
	})
	if err := bus.Publish(ctx, bobJoin); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	occs, err := m.GetOccupants(room)
	if err != nil {
		t.Fatalf("GetOccupants: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("GetOccupants() = %+v, want 1 occupant after join", occs)
	}

	bobLeave := eventbus.NewEvent(eventbus.ChMucOccupantChanged, eventbus.XmppSource, eventbus.MucOccupantChanged{
		Room: room, Occupant: eventbus.MucOccupant{Nick: "Bob", Role: eventbus.MucRoleNone},
	})
	if err := bus.Publish(ctx, bobLeave); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	occs, _ = m.GetOccupants(room)
	if len(occs) != 0 {
		t.Fatalf("GetOccupants() = %+v, want empty after role=none", occs)
	}

	left := eventbus.NewEvent(eventbus.ChMucLeft, eventbus.XmppSource, eventbus.MucLeft{Room: room})
	if err := bus.Publish(ctx, left); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if rooms := m.GetJoinedRooms(); len(rooms) != 0 {
		t.Fatalf("GetJoinedRooms() = %v, want empty after MucLeft", rooms)
	}
}

func TestMucMessageReceivedPersistsAsGroupchat(t *testing.T) {
	m, bus := newTestManager(t)
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := eventbus.ChatMessage{ID: "gm1", From: "r@conf/bob", To: "r@conf", Body: "hi all", Timestamp: time.Now()}
	evt := eventbus.NewEvent(eventbus.ChMucMessageReceived, eventbus.XmppSource, eventbus.MucMessageReceived{Room: "r@conf", Message: msg})
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	msgs, err := m.GetRoomMessages("r@conf", 10, "")
	if err != nil {
		t.Fatalf("GetRoomMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].MessageType != eventbus.MessageGroupchat {
		t.Fatalf("GetRoomMessages() = %+v, want 1 groupchat message", msgs)
	}
}

func TestGetRoomMessagesBeforeIDPagination(t *testing.T) {
	m, bus := newTestManager(t)
	defer runManager(t, m)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	base := time.Now().UTC()
	for i, id := range []string{"g1", "g2", "g3"} {
		msg := eventbus.ChatMessage{ID: id, From: "r@conf/bob", To: "r@conf", Body: id, Timestamp: base.Add(time.Duration(i) * time.Second)}
		evt := eventbus.NewEvent(eventbus.ChMucMessageReceived, eventbus.XmppSource, eventbus.MucMessageReceived{Room: "r@conf", Message: msg})
		if err := bus.Publish(ctx, evt); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	time.Sleep(30 * time.Millisecond)

	msgs, err := m.GetRoomMessages("r@conf", 10, "g3")
	if err != nil {
		t.Fatalf("GetRoomMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "g2" || msgs[1].ID != "g1" {
		t.Fatalf("GetRoomMessages(before=g3) = %+v, want [g2 g1]", msgs)
	}
}
