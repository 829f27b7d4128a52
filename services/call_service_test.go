package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/pkg"
	"github.com/ferhatk/pazar/ws"
)

// ─── Fakes ───

type fakeCallRepo struct {
	calls  map[string]*models.Call
	nextID int
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[string]*models.Call)}
}

func (r *fakeCallRepo) Create(_ context.Context, call *models.Call) error {
	r.nextID++
	call.ID = fmt.Sprintf("call-%d", r.nextID)
	call.Status = models.CallStatusInitiated
	call.CreatedAt = time.Now()
	stored := *call
	r.calls[call.ID] = &stored
	return nil
}

func (r *fakeCallRepo) GetByID(_ context.Context, id string) (*models.Call, error) {
	call, ok := r.calls[id]
	if !ok {
		return nil, fmt.Errorf("%w: call not found", pkg.ErrNotFound)
	}
	copied := *call
	return &copied, nil
}

func (r *fakeCallRepo) MarkRinging(_ context.Context, id string) (bool, error) {
	call, ok := r.calls[id]
	if !ok || call.Status != models.CallStatusInitiated {
		return false, nil
	}
	call.Status = models.CallStatusRinging
	return true, nil
}

func (r *fakeCallRepo) MarkActive(_ context.Context, id string) (bool, error) {
	call, ok := r.calls[id]
	if !ok || call.Status != models.CallStatusRinging {
		return false, nil
	}
	now := time.Now()
	call.Status = models.CallStatusActive
	call.StartedAt = &now
	return true, nil
}

func (r *fakeCallRepo) MarkEnded(_ context.Context, id string, duration int) (bool, error) {
	call, ok := r.calls[id]
	if !ok || call.Status == models.CallStatusEnded {
		return false, nil
	}
	call.Status = models.CallStatusEnded
	call.Duration = duration
	return true, nil
}

func (r *fakeCallRepo) GetActiveForUser(_ context.Context, userID string) (*models.Call, error) {
	for _, call := range r.calls {
		if call.Status != models.CallStatusEnded && call.IsParticipant(userID) {
			copied := *call
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeCallRepo) ListForChat(_ context.Context, chatID string, limit int) ([]models.Call, error) {
	var out []models.Call
	for _, call := range r.calls {
		if call.ChatID == chatID && len(out) < limit {
			out = append(out, *call)
		}
	}
	return out, nil
}

type fakeChatGetter struct {
	chats map[string]*models.Chat
}

func (g *fakeChatGetter) GetByID(_ context.Context, id string) (*models.Chat, error) {
	chat, ok := g.chats[id]
	if !ok {
		return nil, fmt.Errorf("%w: chat not found", pkg.ErrNotFound)
	}
	return chat, nil
}

type fakeUserGetter struct {
	users map[string]*models.User
}

func (g *fakeUserGetter) GetByID(_ context.Context, id string) (*models.User, error) {
	user, ok := g.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
	}
	return user, nil
}

type userEvent struct {
	userID string
	event  ws.Event
}

type roomEvent struct {
	callID  string
	exclude string
	event   ws.Event
}

// fakeHub implements ws.EventPublisher and records everything broadcast.
type fakeHub struct {
	online     map[string]bool
	userEvents []userEvent
	roomEvents []roomEvent
}

func newFakeHub(onlineUsers ...string) *fakeHub {
	online := make(map[string]bool)
	for _, id := range onlineUsers {
		online[id] = true
	}
	return &fakeHub{online: online}
}

func (h *fakeHub) BroadcastToUser(userID string, event ws.Event) bool {
	if !h.online[userID] {
		return false
	}
	h.userEvents = append(h.userEvents, userEvent{userID: userID, event: event})
	return true
}

func (h *fakeHub) BroadcastToCallPeers(callID, excludeUserID string, event ws.Event) {
	h.roomEvents = append(h.roomEvents, roomEvent{callID: callID, exclude: excludeUserID, event: event})
}

func (h *fakeHub) IsUserOnline(userID string) bool { return h.online[userID] }

func (h *fakeHub) GetOnlineUserIDs() []string {
	var ids []string
	for id, on := range h.online {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *fakeHub) eventsFor(userID string) []ws.Event {
	var out []ws.Event
	for _, ue := range h.userEvents {
		if ue.userID == userID {
			out = append(out, ue.event)
		}
	}
	return out
}

// ─── Test setup ───

const (
	buyerID  = "buyer-1"
	sellerID = "seller-1"
	chatID   = "chat-1"
)

func newCallFixture(hub *fakeHub) (CallService, *fakeCallRepo) {
	repo := newFakeCallRepo()
	chats := &fakeChatGetter{chats: map[string]*models.Chat{
		chatID: {ID: chatID, BuyerID: buyerID, SellerID: sellerID},
	}}
	users := &fakeUserGetter{users: map[string]*models.User{
		buyerID:  {ID: buyerID, Username: "ayse", Role: models.UserRoleBuyer},
		sellerID: {ID: sellerID, Username: "kilim-store", Role: models.UserRoleSeller},
	}}
	return NewCallService(repo, chats, users, hub), repo
}

func initiateReq() models.InitiateCallRequest {
	return models.InitiateCallRequest{
		ChatID:     chatID,
		ReceiverID: sellerID,
		CallType:   models.CallTypeVoice,
	}
}

// ─── InitiateCall ───

func TestInitiateCall_ReceiverOnline(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, repo := newCallFixture(hub)

	call, err := svc.InitiateCall(context.Background(), buyerID, initiateReq())
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}

	if call.Status != models.CallStatusRinging {
		t.Errorf("status = %s, want ringing", call.Status)
	}
	stored, _ := repo.GetByID(context.Background(), call.ID)
	if stored.Status != models.CallStatusRinging {
		t.Errorf("stored status = %s, want ringing", stored.Status)
	}

	events := hub.eventsFor(sellerID)
	if len(events) != 1 || events[0].Op != ws.OpIncomingCall {
		t.Fatalf("receiver events = %+v, want one incoming_call", events)
	}
	if got := hub.eventsFor(buyerID); len(got) != 0 {
		t.Errorf("caller received %d events, want 0", len(got))
	}

	broadcast, ok := events[0].Data.(models.CallBroadcast)
	if !ok {
		t.Fatalf("incoming_call payload type = %T", events[0].Data)
	}
	if broadcast.CallerUsername != "ayse" || broadcast.Status != models.CallStatusRinging {
		t.Errorf("broadcast = %+v", broadcast)
	}
}

func TestInitiateCall_ReceiverOffline(t *testing.T) {
	hub := newFakeHub(buyerID) // seller not connected
	svc, repo := newCallFixture(hub)

	call, err := svc.InitiateCall(context.Background(), buyerID, initiateReq())
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}

	// Notification dropped, record stays initiated.
	if call.Status != models.CallStatusInitiated {
		t.Errorf("status = %s, want initiated", call.Status)
	}
	stored, _ := repo.GetByID(context.Background(), call.ID)
	if stored.Status != models.CallStatusInitiated {
		t.Errorf("stored status = %s, want initiated", stored.Status)
	}
	if len(hub.userEvents) != 0 {
		t.Errorf("broadcast events = %d, want 0", len(hub.userEvents))
	}
}

func TestInitiateCall_Validation(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		req     models.InitiateCallRequest
		wantErr error
	}{
		{
			name:    "self call",
			caller:  buyerID,
			req:     models.InitiateCallRequest{ChatID: chatID, ReceiverID: buyerID, CallType: models.CallTypeVoice},
			wantErr: pkg.ErrBadRequest,
		},
		{
			name:    "caller not in chat",
			caller:  "stranger",
			req:     initiateReq(),
			wantErr: pkg.ErrForbidden,
		},
		{
			name:    "receiver not the chat counterpart",
			caller:  buyerID,
			req:     models.InitiateCallRequest{ChatID: chatID, ReceiverID: "stranger", CallType: models.CallTypeVoice},
			wantErr: pkg.ErrBadRequest,
		},
		{
			name:    "unknown chat",
			caller:  buyerID,
			req:     models.InitiateCallRequest{ChatID: "nope", ReceiverID: sellerID, CallType: models.CallTypeVoice},
			wantErr: pkg.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newFakeHub(buyerID, sellerID)
			svc, _ := newCallFixture(hub)

			_, err := svc.InitiateCall(context.Background(), tt.caller, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitiateCall_BusyChecks(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	if _, err := svc.InitiateCall(context.Background(), buyerID, initiateReq()); err != nil {
		t.Fatalf("first InitiateCall: %v", err)
	}

	// Caller already has an ongoing call.
	_, err := svc.InitiateCall(context.Background(), buyerID, initiateReq())
	if !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("busy caller err = %v, want ErrBadRequest", err)
	}
}

// ─── AcceptCall ───

func TestAcceptCall(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	call, err := svc.InitiateCall(context.Background(), buyerID, initiateReq())
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}

	accepted, err := svc.AcceptCall(context.Background(), sellerID, call.ID)
	if err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}

	if accepted.Status != models.CallStatusActive {
		t.Errorf("status = %s, want active", accepted.Status)
	}
	if accepted.StartedAt == nil {
		t.Error("StartedAt not set on accept")
	}

	// call_accepted goes to both sides.
	for _, userID := range []string{buyerID, sellerID} {
		found := false
		for _, ev := range hub.eventsFor(userID) {
			if ev.Op == ws.OpCallAccepted {
				found = true
			}
		}
		if !found {
			t.Errorf("user %s did not receive call_accepted", userID)
		}
	}
}

func TestAcceptCall_OnlyReceiver(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())

	_, err := svc.AcceptCall(context.Background(), buyerID, call.ID)
	if !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("caller accept err = %v, want ErrForbidden", err)
	}
}

func TestAcceptCall_NotRinging(t *testing.T) {
	hub := newFakeHub(buyerID) // seller offline → record stays initiated
	svc, _ := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())

	_, err := svc.AcceptCall(context.Background(), sellerID, call.ID)
	if !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("accept initiated err = %v, want ErrBadRequest", err)
	}
}

func TestAcceptCall_AlreadyEnded(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())
	if _, err := svc.EndCall(context.Background(), buyerID, call.ID, 0); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	_, err := svc.AcceptCall(context.Background(), sellerID, call.ID)
	if !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("accept ended err = %v, want ErrBadRequest", err)
	}
}

// ─── EndCall ───

func TestEndCall_Idempotent(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())
	if _, err := svc.AcceptCall(context.Background(), sellerID, call.ID); err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}

	ended, err := svc.EndCall(context.Background(), sellerID, call.ID, 42)
	if err != nil {
		t.Fatalf("first EndCall: %v", err)
	}
	if ended.Status != models.CallStatusEnded || ended.Duration != 42 {
		t.Errorf("ended call = %+v", ended)
	}

	eventsBefore := len(hub.userEvents)

	// Second end: no-op success, no new notifications, duration untouched.
	again, err := svc.EndCall(context.Background(), buyerID, call.ID, 99)
	if err != nil {
		t.Fatalf("second EndCall: %v", err)
	}
	if again.Duration != 42 {
		t.Errorf("duration after repeat end = %d, want 42", again.Duration)
	}
	if len(hub.userEvents) != eventsBefore {
		t.Errorf("repeat end broadcast %d new events, want 0", len(hub.userEvents)-eventsBefore)
	}
}

func TestEndCall_NotParticipant(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())

	_, err := svc.EndCall(context.Background(), "stranger", call.ID, 0)
	if !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("stranger end err = %v, want ErrForbidden", err)
	}
}

// ─── RelaySignal ───

func TestRelaySignal_ExcludesSender(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())

	err := svc.RelaySignal(context.Background(), buyerID, call.ID, models.SendSignalRequest{
		Type: models.SignalTypeOffer,
		SDP:  "v=0 fake-sdp",
	})
	if err != nil {
		t.Fatalf("RelaySignal: %v", err)
	}

	if len(hub.roomEvents) != 1 {
		t.Fatalf("room events = %d, want 1", len(hub.roomEvents))
	}
	re := hub.roomEvents[0]
	if re.callID != call.ID || re.exclude != buyerID {
		t.Errorf("relay routed callID=%s exclude=%s", re.callID, re.exclude)
	}

	signal, ok := re.event.Data.(models.CallSignal)
	if !ok {
		t.Fatalf("signal payload type = %T", re.event.Data)
	}
	if signal.SenderID != buyerID || signal.Type != models.SignalTypeOffer {
		t.Errorf("signal = %+v", signal)
	}
}

func TestRelaySignal_Rejections(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())

	if err := svc.RelaySignal(context.Background(), "stranger", call.ID, models.SendSignalRequest{
		Type: models.SignalTypeOffer, SDP: "x",
	}); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("stranger signal err = %v, want ErrForbidden", err)
	}

	if _, err := svc.EndCall(context.Background(), buyerID, call.ID, 0); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	if err := svc.RelaySignal(context.Background(), buyerID, call.ID, models.SendSignalRequest{
		Type: models.SignalTypeOffer, SDP: "x",
	}); !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("signal on ended call err = %v, want ErrBadRequest", err)
	}
}

// ─── HandleDisconnect ───

func TestHandleDisconnect_EndsOngoingCall(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, repo := newCallFixture(hub)

	call, _ := svc.InitiateCall(context.Background(), buyerID, initiateReq())
	if _, err := svc.AcceptCall(context.Background(), sellerID, call.ID); err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}

	eventsBefore := len(hub.eventsFor(sellerID))

	svc.HandleDisconnect(buyerID)

	stored, _ := repo.GetByID(context.Background(), call.ID)
	if stored.Status != models.CallStatusEnded {
		t.Errorf("status after disconnect = %s, want ended", stored.Status)
	}

	// Only the other party gets call_ended.
	sellerEvents := hub.eventsFor(sellerID)
	if len(sellerEvents) != eventsBefore+1 || sellerEvents[len(sellerEvents)-1].Op != ws.OpCallEnded {
		t.Errorf("seller events after disconnect = %+v", sellerEvents)
	}
}

func TestHandleDisconnect_NoCall(t *testing.T) {
	hub := newFakeHub(buyerID, sellerID)
	svc, _ := newCallFixture(hub)

	// Must not panic or broadcast anything.
	svc.HandleDisconnect(buyerID)
	if len(hub.userEvents) != 0 {
		t.Errorf("events = %d, want 0", len(hub.userEvents))
	}
}
