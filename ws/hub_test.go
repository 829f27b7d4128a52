package ws

import (
	"encoding/json"
	"testing"
	"time"
)

// newTestClient builds a client with a buffered send channel and registers it
// directly, without running the Run loop.
func newTestClient(h *Hub, userID string) *Client {
	c := &Client{
		hub:    h,
		userID: userID,
		send:   make(chan []byte, 8),
	}
	h.addClient(c)
	return c
}

func receiveEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBroadcastToUser(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "u1")

	if !h.BroadcastToUser("u1", Event{Op: OpCallAccepted}) {
		t.Error("delivery to connected user = false, want true")
	}
	ev := receiveEvent(t, c)
	if ev.Op != OpCallAccepted {
		t.Errorf("op = %s, want %s", ev.Op, OpCallAccepted)
	}
	if ev.Seq == 0 {
		t.Error("seq not assigned")
	}

	if h.BroadcastToUser("nobody", Event{Op: OpCallEnded}) {
		t.Error("delivery to offline user = true, want false")
	}
}

func TestBroadcastToUser_AllConnections(t *testing.T) {
	h := NewHub()
	tab1 := newTestClient(h, "u1")
	tab2 := newTestClient(h, "u1")

	if !h.BroadcastToUser("u1", Event{Op: OpIncomingCall}) {
		t.Fatal("delivery = false")
	}

	// Aynı hesabın iki tab'ı da event'i alır.
	for _, c := range []*Client{tab1, tab2} {
		if ev := receiveEvent(t, c); ev.Op != OpIncomingCall {
			t.Errorf("op = %s, want %s", ev.Op, OpIncomingCall)
		}
	}
}

func TestJoinCall_Idempotent(t *testing.T) {
	h := NewHub()

	h.JoinCall("call-1", "u1")
	h.JoinCall("call-1", "u1")
	h.JoinCall("call-1", "u2")

	h.roomMu.RLock()
	members := len(h.callRooms["call-1"])
	h.roomMu.RUnlock()

	if members != 2 {
		t.Errorf("room members = %d, want 2", members)
	}
}

func TestLeaveCall_RemovesEmptyRoom(t *testing.T) {
	h := NewHub()

	h.JoinCall("call-1", "u1")
	h.LeaveCall("call-1", "u1")
	h.LeaveCall("call-1", "u1") // tekrar — no-op

	h.roomMu.RLock()
	_, exists := h.callRooms["call-1"]
	h.roomMu.RUnlock()

	if exists {
		t.Error("empty room not deleted")
	}

	// Üye olunmayan odadan ayrılmak panic'lememeli.
	h.LeaveCall("no-such-room", "u1")
}

func TestBroadcastToCallPeers_ExcludesSender(t *testing.T) {
	h := NewHub()
	caller := newTestClient(h, "u1")
	receiver := newTestClient(h, "u2")

	h.JoinCall("call-1", "u1")
	h.JoinCall("call-1", "u2")

	h.BroadcastToCallPeers("call-1", "u1", Event{Op: OpCallSignal})

	if ev := receiveEvent(t, receiver); ev.Op != OpCallSignal {
		t.Errorf("receiver op = %s, want %s", ev.Op, OpCallSignal)
	}

	select {
	case data := <-caller.send:
		t.Errorf("sender received own signal: %s", data)
	default:
	}
}

func TestBroadcastToCallPeers_NonMemberGetsNothing(t *testing.T) {
	h := NewHub()
	outsider := newTestClient(h, "u3")

	h.JoinCall("call-1", "u1")

	h.BroadcastToCallPeers("call-1", "u1", Event{Op: OpCallSignal})

	select {
	case data := <-outsider.send:
		t.Errorf("non-member received signal: %s", data)
	default:
	}
}

func TestTrySend_AfterDisconnectDoesNotPanic(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "u1")

	h.removeClient(c)

	// removeClient send channel'ını kapattı — geç kalan bir heartbeat ack
	// yazımı panic yerine false ile düşmeli.
	if c.trySend([]byte(`{"op":"heartbeat_ack"}`)) {
		t.Error("send succeeded on a closed channel")
	}

	// Tekrar kapatmak no-op.
	c.closeSend()
}

func TestRemoveClient_FullDisconnect(t *testing.T) {
	h := NewHub()

	disconnected := make(chan string, 1)
	h.OnUserDisconnect(func(userID string) {
		disconnected <- userID
	})

	tab1 := newTestClient(h, "u1")
	tab2 := newTestClient(h, "u1")
	h.JoinCall("call-1", "u1")

	// İlk tab kapanır — kullanıcı hâlâ online, callback tetiklenmez.
	h.removeClient(tab1)
	if !h.IsUserOnline("u1") {
		t.Error("user offline after closing one of two tabs")
	}
	select {
	case id := <-disconnected:
		t.Errorf("disconnect callback fired early for %s", id)
	default:
	}

	// Son tab kapanır — offline, oda üyeliği temizlenir, callback tetiklenir.
	h.removeClient(tab2)
	if h.IsUserOnline("u1") {
		t.Error("user still online after last tab closed")
	}

	select {
	case id := <-disconnected:
		if id != "u1" {
			t.Errorf("disconnect callback user = %s, want u1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect callback not fired")
	}

	h.roomMu.RLock()
	_, exists := h.callRooms["call-1"]
	h.roomMu.RUnlock()
	if exists {
		t.Error("room membership not cleaned up on disconnect")
	}
}
