package callclient

import (
	"context"
	"testing"
	"time"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/ws"
)

func strPtr(s string) *string { return &s }

func testBroadcast() *models.CallBroadcast {
	return &models.CallBroadcast{
		ID:                "call-1",
		ChatID:            "chat-1",
		CallerID:          "buyer-1",
		CallerUsername:    "ayse",
		CallerDisplayName: strPtr("Ayşe K."),
		ReceiverID:        "seller-1",
		ReceiverUsername:  "kilim-store",
		CallType:          models.CallTypeVoice,
		Status:            models.CallStatusRinging,
		CreatedAt:         time.Now(),
	}
}

func newWatcherFixture() (*Watcher, *fixture) {
	f := newFixture()
	w := NewWatcher(f.gw, "seller-1", func() MediaDevice { return f.media }, f.linkFactory)
	return w, f
}

func TestWatcher_SurfacesIncomingCall(t *testing.T) {
	w, _ := newWatcherFixture()

	var got *IncomingCall
	w.OnIncoming(func(ic *IncomingCall) { got = ic })

	w.dispatch(Event{Kind: ws.OpIncomingCall, Broadcast: testBroadcast()})

	if got == nil {
		t.Fatal("incoming call not surfaced")
	}
	if got.Call.ID != "call-1" {
		t.Errorf("call id = %s, want call-1", got.Call.ID)
	}
	if got.Counterpart != "Ayşe K." {
		t.Errorf("counterpart = %q, want display name", got.Counterpart)
	}
}

func TestWatcher_CounterpartFallsBackToUsername(t *testing.T) {
	w, _ := newWatcherFixture()

	var got *IncomingCall
	w.OnIncoming(func(ic *IncomingCall) { got = ic })

	b := testBroadcast()
	b.CallerDisplayName = nil
	w.dispatch(Event{Kind: ws.OpIncomingCall, Broadcast: b})

	if got == nil {
		t.Fatal("incoming call not surfaced")
	}
	if got.Counterpart != "ayse" {
		t.Errorf("counterpart = %q, want username fallback", got.Counterpart)
	}
}

func TestWatcher_ForeignReceiverDropped(t *testing.T) {
	w, _ := newWatcherFixture()

	called := false
	w.OnIncoming(func(*IncomingCall) { called = true })

	b := testBroadcast()
	b.ReceiverID = "someone-else"
	w.dispatch(Event{Kind: ws.OpIncomingCall, Broadcast: b})

	if called {
		t.Error("foreign incoming call was surfaced")
	}
}

func TestWatcher_AcceptHandsOffToController(t *testing.T) {
	w, f := newWatcherFixture()

	var got *IncomingCall
	w.OnIncoming(func(ic *IncomingCall) { got = ic })
	w.dispatch(Event{Kind: ws.OpIncomingCall, Broadcast: testBroadcast()})
	if got == nil {
		t.Fatal("incoming call not surfaced")
	}

	ctrl, err := got.Accept(context.Background())
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if ctrl.Status() != models.CallStatusActive {
		t.Errorf("controller status = %s, want active", ctrl.Status())
	}
	if !f.media.acquired {
		t.Error("media not acquired on accept")
	}

	// Kabul sonrası signal'lar bu Controller'a akar.
	w.dispatch(Event{Kind: ws.OpCallSignal, Signal: &models.CallSignal{
		CallID:   "call-1",
		SenderID: "buyer-1",
		Type:     models.SignalTypeOffer,
		SDP:      "v=0 remote-offer",
	}})

	if len(f.link.offersHandled) != 1 {
		t.Errorf("offers handled = %d, want 1", len(f.link.offersHandled))
	}
}

func TestWatcher_RejectNotifiesBackend(t *testing.T) {
	w, f := newWatcherFixture()

	var got *IncomingCall
	w.OnIncoming(func(ic *IncomingCall) { got = ic })
	w.dispatch(Event{Kind: ws.OpIncomingCall, Broadcast: testBroadcast()})
	if got == nil {
		t.Fatal("incoming call not surfaced")
	}

	if err := got.Reject(context.Background()); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if len(f.gw.endedWith) != 1 || f.gw.endedWith[0] != 0 {
		t.Errorf("end notifications = %v, want [0]", f.gw.endedWith)
	}
	// Reddedilen arama için Controller kurulmaz — media'ya dokunulmaz.
	if f.media.acquired {
		t.Error("media acquired for a rejected call")
	}
}

func TestWatcher_SurfacedCallEndedBeforeAnswer(t *testing.T) {
	w, _ := newWatcherFixture()

	w.OnIncoming(func(*IncomingCall) {})
	var dismissed string
	w.OnDismissed(func(callID string) { dismissed = callID })

	w.dispatch(Event{Kind: ws.OpIncomingCall, Broadcast: testBroadcast()})

	ended := testCall()
	ended.Status = models.CallStatusEnded
	w.dispatch(Event{Kind: ws.OpCallEnded, Call: ended})

	if dismissed != "call-1" {
		t.Errorf("dismissed call = %q, want call-1", dismissed)
	}
}

func TestWatcher_LifecycleForwardedToAttached(t *testing.T) {
	w, f := newWatcherFixture()

	// Caller tarafı: dışarıda kurulan Controller Attach edilir.
	c := NewController(f.gw, "buyer-1", f.media, f.linkFactory)
	if _, err := c.PlaceCall(context.Background(), "chat-1", "seller-1", models.CallTypeVoice); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	w.Attach(c)

	ended := testCall()
	ended.Status = models.CallStatusEnded
	w.dispatch(Event{Kind: ws.OpCallEnded, Call: ended})

	if c.Status() != models.CallStatusEnded {
		t.Errorf("controller status = %s, want ended", c.Status())
	}
}

func TestWatcher_SignalWithoutActiveCallIgnored(t *testing.T) {
	w, f := newWatcherFixture()

	// Aktif Controller yok — crash etmemeli.
	w.dispatch(Event{Kind: ws.OpCallSignal, Signal: &models.CallSignal{
		CallID:   "call-1",
		SenderID: "buyer-1",
		Type:     models.SignalTypeOffer,
		SDP:      "v=0 remote-offer",
	}})

	if len(f.link.offersHandled) != 0 {
		t.Error("signal processed with no active controller")
	}
}

func TestWatcher_DetachStopsForwarding(t *testing.T) {
	w, f := newWatcherFixture()

	c := NewController(f.gw, "buyer-1", f.media, f.linkFactory)
	if _, err := c.PlaceCall(context.Background(), "chat-1", "seller-1", models.CallTypeVoice); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	w.Attach(c)
	w.Detach()

	w.dispatch(Event{Kind: ws.OpCallSignal, Signal: &models.CallSignal{
		CallID:   "call-1",
		SenderID: "seller-1",
		Type:     models.SignalTypeAnswer,
		SDP:      "v=0 answer",
	}})

	if len(f.link.answersHandled) != 0 {
		t.Error("signal forwarded after Detach")
	}
}
