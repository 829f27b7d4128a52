package callclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/ws"
)

// ─── Fakes ───

type fakeGateway struct {
	mu sync.Mutex

	call        *models.Call
	initiateErr error
	acceptErr   error
	onAccept    func() // AcceptCall dönmeden hemen önce çağrılır

	signals   []models.SendSignalRequest
	joined    []string
	left      []string
	endedWith []int

	events chan Event
}

func newFakeGateway(call *models.Call) *fakeGateway {
	return &fakeGateway{call: call, events: make(chan Event, 16)}
}

func (g *fakeGateway) InitiateCall(_ context.Context, req models.InitiateCallRequest) (*models.Call, error) {
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	copied := *g.call
	return &copied, nil
}

func (g *fakeGateway) AcceptCall(_ context.Context, callID string) (*models.Call, error) {
	if g.onAccept != nil {
		g.onAccept()
	}
	if g.acceptErr != nil {
		return nil, g.acceptErr
	}
	copied := *g.call
	copied.Status = models.CallStatusActive
	now := time.Now()
	copied.StartedAt = &now
	return &copied, nil
}

func (g *fakeGateway) EndCall(_ context.Context, callID string, duration int) (*models.Call, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endedWith = append(g.endedWith, duration)
	copied := *g.call
	copied.Status = models.CallStatusEnded
	copied.Duration = duration
	return &copied, nil
}

func (g *fakeGateway) SendSignal(_ context.Context, callID string, req models.SendSignalRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signals = append(g.signals, req)
	return nil
}

func (g *fakeGateway) JoinCall(callID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joined = append(g.joined, callID)
	return nil
}

func (g *fakeGateway) LeaveCall(callID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.left = append(g.left, callID)
	return nil
}

func (g *fakeGateway) Events() <-chan Event { return g.events }
func (g *fakeGateway) Close() error         { return nil }

func (g *fakeGateway) signalTypes() []models.SignalType {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.SignalType
	for _, s := range g.signals {
		out = append(out, s.Type)
	}
	return out
}

type fakeMedia struct {
	mu         sync.Mutex
	acquireErr error
	acquired   bool
	released   int
}

func (m *fakeMedia) Acquire(video bool) error {
	if m.acquireErr != nil {
		return m.acquireErr
	}
	m.mu.Lock()
	m.acquired = true
	m.mu.Unlock()
	return nil
}

func (m *fakeMedia) Tracks() []webrtc.TrackLocal { return nil }
func (m *fakeMedia) ToggleMicrophone() bool      { return true }
func (m *fakeMedia) ToggleCamera() bool          { return true }
func (m *fakeMedia) ToggleSpeaker() bool         { return true }

func (m *fakeMedia) Release() {
	m.mu.Lock()
	m.released++
	m.mu.Unlock()
}

type fakePeerLink struct {
	mu sync.Mutex

	offerErr error

	offersHandled  []string
	answersHandled []string
	candidates     []string
	closed         int
}

func (l *fakePeerLink) CreateOffer() (string, error) {
	if l.offerErr != nil {
		return "", l.offerErr
	}
	return "v=0 local-offer", nil
}

func (l *fakePeerLink) HandleOffer(sdp string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offersHandled = append(l.offersHandled, sdp)
	return "v=0 local-answer", nil
}

func (l *fakePeerLink) HandleAnswer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answersHandled = append(l.answersHandled, sdp)
	return nil
}

func (l *fakePeerLink) AddCandidate(candidate string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, candidate)
	return nil
}

func (l *fakePeerLink) OnCandidate(fn func(string)) {}
func (l *fakePeerLink) OnConnected(fn func())       {}

func (l *fakePeerLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

// ─── Fixture ───

func testCall() *models.Call {
	return &models.Call{
		ID:         "call-1",
		ChatID:     "chat-1",
		CallerID:   "buyer-1",
		ReceiverID: "seller-1",
		CallType:   models.CallTypeVoice,
		Status:     models.CallStatusRinging,
		CreatedAt:  time.Now(),
	}
}

type fixture struct {
	gw    *fakeGateway
	media *fakeMedia
	link  *fakePeerLink
}

func newFixture() *fixture {
	return &fixture{
		gw:    newFakeGateway(testCall()),
		media: &fakeMedia{},
		link:  &fakePeerLink{},
	}
}

func (f *fixture) linkFactory(media MediaDevice, video bool) (PeerLink, error) {
	return f.link, nil
}

func (f *fixture) caller(t *testing.T) *Controller {
	t.Helper()
	c := NewController(f.gw, "buyer-1", f.media, f.linkFactory)
	if _, err := c.PlaceCall(context.Background(), "chat-1", "seller-1", models.CallTypeVoice); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	return c
}

func (f *fixture) receiver() *Controller {
	return NewIncomingController(f.gw, "seller-1", f.media, f.linkFactory, testCall())
}

// ─── PlaceCall ───

func TestPlaceCall_StartsNegotiationImmediately(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	if got := c.Status(); got != models.CallStatusRinging {
		t.Errorf("status = %s, want ringing", got)
	}
	if len(f.gw.joined) != 1 || f.gw.joined[0] != "call-1" {
		t.Errorf("joined rooms = %v, want [call-1]", f.gw.joined)
	}
	if !f.media.acquired {
		t.Error("media not acquired")
	}

	// Offer accept beklemeden gönderilir.
	types := f.gw.signalTypes()
	if len(types) != 1 || types[0] != models.SignalTypeOffer {
		t.Errorf("signals = %v, want [offer]", types)
	}
}

func TestPlaceCall_DeviceErrorAborts(t *testing.T) {
	f := newFixture()
	f.media.acquireErr = fmt.Errorf("%w: mic denied", ErrDeviceUnavailable)

	c := NewController(f.gw, "buyer-1", f.media, f.linkFactory)
	_, err := c.PlaceCall(context.Background(), "chat-1", "seller-1", models.CallTypeVoice)

	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if got := c.Status(); got != models.CallStatusEnded {
		t.Errorf("status = %s, want ended", got)
	}
	// Backend'e end bildirilir — karşı taraf çalıyor ekranında kalmaz.
	if len(f.gw.endedWith) != 1 {
		t.Errorf("end notifications = %d, want 1", len(f.gw.endedWith))
	}
	// Yarım kurulmuş link bırakılmaz.
	if f.link.closed != 0 && len(f.link.offersHandled) != 0 {
		t.Error("link was used despite device failure")
	}
}

func TestPlaceCall_SecondUseRejected(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	if _, err := c.PlaceCall(context.Background(), "chat-1", "seller-1", models.CallTypeVoice); err == nil {
		t.Error("second PlaceCall succeeded, want error")
	}
}

// ─── Accept ───

func TestAccept(t *testing.T) {
	f := newFixture()
	c := f.receiver()

	if err := c.Accept(context.Background()); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if got := c.Status(); got != models.CallStatusActive {
		t.Errorf("status = %s, want active", got)
	}
	if !f.media.acquired {
		t.Error("media not acquired on accept")
	}
	if len(f.gw.joined) != 1 {
		t.Errorf("joined rooms = %v, want [call-1]", f.gw.joined)
	}
}

func TestAccept_OnlyReceiverRole(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	if err := c.Accept(context.Background()); err == nil {
		t.Error("caller Accept succeeded, want error")
	}
}

func TestAccept_RemoteEndsWhileAcceptInFlight(t *testing.T) {
	f := newFixture()
	c := f.receiver()

	ended := testCall()
	ended.Status = models.CallStatusEnded

	// Accept REST'i uçuştayken call_ended gelir ve teardown tamamlanır.
	f.gw.onAccept = func() {
		c.HandleEvent(Event{Kind: ws.OpCallEnded, Call: ended})
	}

	if err := c.Accept(context.Background()); err == nil {
		t.Fatal("Accept succeeded after the call ended, want error")
	}

	// ended terminal — accept yanıtı aramayı diriltmez.
	if got := c.Status(); got != models.CallStatusEnded {
		t.Errorf("status = %s, want ended", got)
	}
	if f.link.closed != 1 {
		t.Errorf("link closes = %d, want 1", f.link.closed)
	}
	if f.media.released != 1 {
		t.Errorf("media releases = %d, want 1", f.media.released)
	}
	// Remote sonlandırdı — backend'e ayrıca end gitmez.
	if len(f.gw.endedWith) != 0 {
		t.Errorf("end notifications = %d, want 0", len(f.gw.endedWith))
	}
}

func TestAccept_AfterEndRejected(t *testing.T) {
	f := newFixture()
	c := f.receiver()

	if err := c.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := c.Accept(context.Background()); err == nil {
		t.Error("Accept after End succeeded, want error")
	}
}

// ─── End / teardown ───

func TestEnd_Idempotent(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	if err := c.End(context.Background()); err != nil {
		t.Fatalf("first End: %v", err)
	}
	if err := c.End(context.Background()); err != nil {
		t.Fatalf("second End: %v", err)
	}

	// Teardown ve backend bildirimi bir kez çalışır.
	if len(f.gw.endedWith) != 1 {
		t.Errorf("end notifications = %d, want 1", len(f.gw.endedWith))
	}
	if f.link.closed != 1 {
		t.Errorf("link closes = %d, want 1", f.link.closed)
	}
	if f.media.released != 1 {
		t.Errorf("media releases = %d, want 1", f.media.released)
	}
	if len(f.gw.left) != 1 {
		t.Errorf("room leaves = %d, want 1", len(f.gw.left))
	}
}

func TestRemoteEnded_NoBackendNotify(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	ended := testCall()
	ended.Status = models.CallStatusEnded
	c.HandleEvent(Event{Kind: ws.OpCallEnded, Call: ended})

	if got := c.Status(); got != models.CallStatusEnded {
		t.Errorf("status = %s, want ended", got)
	}
	// Kayıt zaten ended — backend'e ikinci bir end gitmez.
	if len(f.gw.endedWith) != 0 {
		t.Errorf("end notifications = %d, want 0", len(f.gw.endedWith))
	}
	if f.link.closed != 1 || f.media.released != 1 {
		t.Errorf("teardown incomplete: closes=%d releases=%d", f.link.closed, f.media.released)
	}
}

func TestRemoteEnded_StaleIgnored(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	other := testCall()
	other.ID = "call-other"
	other.Status = models.CallStatusEnded
	c.HandleEvent(Event{Kind: ws.OpCallEnded, Call: other})

	if got := c.Status(); got == models.CallStatusEnded {
		t.Error("stale call_ended tore down an unrelated call")
	}
}

// ─── call_accepted ───

func TestAccepted_CallerResendsOffer(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	active := testCall()
	active.Status = models.CallStatusActive
	c.HandleEvent(Event{Kind: ws.OpCallAccepted, Call: active})

	if got := c.Status(); got != models.CallStatusActive {
		t.Errorf("status = %s, want active", got)
	}

	// İlk offer receiver odaya girmeden düşmüş olabilir — accept'te tekrar gider.
	types := f.gw.signalTypes()
	if len(types) != 2 || types[1] != models.SignalTypeOffer {
		t.Errorf("signals = %v, want [offer offer]", types)
	}
}

func TestAccepted_AfterEndIgnored(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	if err := c.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}

	active := testCall()
	active.Status = models.CallStatusActive
	c.HandleEvent(Event{Kind: ws.OpCallAccepted, Call: active})

	if got := c.Status(); got != models.CallStatusEnded {
		t.Errorf("status = %s, want ended (terminal)", got)
	}
}

// ─── HandleSignal ───

func TestHandleSignal_OfferProducesAnswer(t *testing.T) {
	f := newFixture()
	c := f.receiver()
	if err := c.Accept(context.Background()); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	c.HandleSignal(models.CallSignal{
		CallID:   "call-1",
		SenderID: "buyer-1",
		Type:     models.SignalTypeOffer,
		SDP:      "v=0 remote-offer",
	})

	if len(f.link.offersHandled) != 1 {
		t.Fatalf("offers handled = %d, want 1", len(f.link.offersHandled))
	}
	types := f.gw.signalTypes()
	if len(types) != 1 || types[0] != models.SignalTypeAnswer {
		t.Errorf("signals = %v, want [answer]", types)
	}
}

func TestHandleSignal_OwnSignalIgnored(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	c.HandleSignal(models.CallSignal{
		CallID:   "call-1",
		SenderID: "buyer-1", // kendimiz
		Type:     models.SignalTypeAnswer,
		SDP:      "v=0 echo",
	})

	if len(f.link.answersHandled) != 0 {
		t.Error("own signal was processed")
	}
}

func TestHandleSignal_BeforeLinkDropped(t *testing.T) {
	f := newFixture()
	c := f.receiver() // Accept çağrılmadı — link yok

	// Crash etmemeli, sessizce düşmeli.
	c.HandleSignal(models.CallSignal{
		CallID:    "call-1",
		SenderID:  "buyer-1",
		Type:      models.SignalTypeCandidate,
		Candidate: `{"candidate":"candidate:1"}`,
	})

	if len(f.link.candidates) != 0 {
		t.Error("candidate processed without a link")
	}
}

func TestHandleSignal_StaleCallIgnored(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	c.HandleSignal(models.CallSignal{
		CallID:   "call-other",
		SenderID: "seller-1",
		Type:     models.SignalTypeAnswer,
		SDP:      "v=0 stale",
	})

	if len(f.link.answersHandled) != 0 {
		t.Error("stale signal was processed")
	}
}

// ─── ElapsedSeconds ───

func TestElapsedSeconds_ZeroBeforeActive(t *testing.T) {
	f := newFixture()
	c := f.caller(t)

	if got := c.ElapsedSeconds(); got != 0 {
		t.Errorf("elapsed while ringing = %d, want 0", got)
	}

	if err := c.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if got := c.ElapsedSeconds(); got != 0 {
		t.Errorf("elapsed after immediate end = %d, want 0", got)
	}
}
