// Package services — CallService: alıcı-satıcı arama iş mantığı.
//
// 1:1 sesli/görüntülü arama sistemi:
// - Chat'i olan alıcı-satıcı çiftleri birbirini arayabilir
// - Sunucu sadece signaling relay görevi görür — medya direkt P2P (WebRTC)
// - Her arama kalıcı bir Call kaydı üretir (arama geçmişi için)
//
// Lifecycle: initiated → ringing → active → ended.
// "ringing" yalnızca incoming_call bildirimi gerçekten online bir receiver'a
// teslim edildiğinde yazılır. Receiver offline ise bildirim düşer, kayıt
// initiated'da kalır — caller timeout/cancel ile sonlandırır.
//
// Signaling akışı:
// 1. Caller → InitiateCall → validate → DB kayıt → BroadcastToUser(receiver)
// 2. Receiver → AcceptCall → ringing→active → her iki tarafa call_accepted
// 3. SDP/ICE → RelaySignal → CallId odasındaki karşı tarafa (gönderene asla)
// 4. Either → EndCall → →ended (idempotent) → her iki tarafa call_ended
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/pkg"
	"github.com/ferhatk/pazar/repository"
	"github.com/ferhatk/pazar/ws"
)

// ─── ISP Interface'leri ───
//
// Interface Segregation: CallService sadece ihtiyacı olan metotlara bağımlıdır.

// ChatGetter, arama yetki kontrolü için minimal chat erişimi.
// repository.ChatRepository bu interface'i duck typing ile otomatik karşılar.
type ChatGetter interface {
	GetByID(ctx context.Context, id string) (*models.Chat, error)
}

// UserInfoGetter, kullanıcı bilgisi almak için minimal interface.
type UserInfoGetter interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ─── CallService Interface ───

// CallService, arama operasyonları için iş mantığı interface'i.
type CallService interface {
	// InitiateCall, yeni bir arama başlatır.
	// Chat üyeliği ve meşguliyet kontrolü yapar, receiver online ise
	// incoming_call bildirimi gönderip kaydı ringing'e taşır.
	InitiateCall(ctx context.Context, callerID string, req models.InitiateCallRequest) (*models.Call, error)

	// AcceptCall, çalan bir aramayı kabul eder. Sadece receiver kabul edebilir.
	// ringing → active; StartedAt set edilir.
	AcceptCall(ctx context.Context, userID, callID string) (*models.Call, error)

	// EndCall, aramayı sonlandırır (reject ve cancel dahil — hepsi aynı geçiş).
	// Her iki taraf da çağırabilir. İdempotent: zaten ended ise no-op başarı.
	EndCall(ctx context.Context, userID, callID string, duration int) (*models.Call, error)

	// RelaySignal, WebRTC signaling verisini CallId odasındaki karşı tarafa iletir.
	// Server içeriğe bakmaz — opak relay. Gönderene asla geri dönmez.
	RelaySignal(ctx context.Context, senderID, callID string, req models.SendSignalRequest) error

	// GetCallHistory, chat'in arama geçmişini döner.
	GetCallHistory(ctx context.Context, userID, chatID string, limit int) ([]models.Call, error)

	// HandleDisconnect, kullanıcının son WS bağlantısı koptuğunda çağrılır.
	// Devam eden araması varsa sonlandırır ve karşı tarafa bildirir.
	HandleDisconnect(userID string)
}

// callService, CallService'in private implementasyonu.
type callService struct {
	callRepo   repository.CallRepository
	chatGetter ChatGetter
	userGetter UserInfoGetter
	hub        ws.EventPublisher
}

// NewCallService, constructor. Tüm dependency'ler injection ile alınır.
func NewCallService(
	callRepo repository.CallRepository,
	chatGetter ChatGetter,
	userGetter UserInfoGetter,
	hub ws.EventPublisher,
) CallService {
	return &callService{
		callRepo:   callRepo,
		chatGetter: chatGetter,
		userGetter: userGetter,
		hub:        hub,
	}
}

// InitiateCall, yeni bir arama başlatır.
func (s *callService) InitiateCall(ctx context.Context, callerID string, req models.InitiateCallRequest) (*models.Call, error) {
	// 1. Kendini arayamaz
	if callerID == req.ReceiverID {
		return nil, fmt.Errorf("%w: cannot call yourself", pkg.ErrBadRequest)
	}

	// 2. Chat ilişkisi kontrolü — arama her zaman bir chat'e bağlıdır.
	// Caller chat'in tarafı olmalı, receiver karşı taraf olmalı.
	chat, err := s.chatGetter.GetByID(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(callerID) {
		return nil, fmt.Errorf("%w: not part of this chat", pkg.ErrForbidden)
	}
	if chat.OtherParty(callerID) != req.ReceiverID {
		return nil, fmt.Errorf("%w: receiver is not in this chat", pkg.ErrBadRequest)
	}

	// 3. Caller zaten aramada mı?
	if existing, err := s.callRepo.GetActiveForUser(ctx, callerID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: already in a call", pkg.ErrBadRequest)
	}

	// 4. Receiver meşgul mü?
	if existing, err := s.callRepo.GetActiveForUser(ctx, req.ReceiverID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: user is busy", pkg.ErrBadRequest)
	}

	// 5. Call kaydı oluştur (status=initiated)
	call := &models.Call{
		ChatID:     req.ChatID,
		CallerID:   callerID,
		ReceiverID: req.ReceiverID,
		CallType:   req.CallType,
	}
	if err := s.callRepo.Create(ctx, call); err != nil {
		return nil, err
	}

	log.Printf("[call] initiated: %s → %s (type=%s, id=%s)", callerID, req.ReceiverID, req.CallType, call.ID)

	// 6. Receiver offline ise bildirim düşer — kayıt initiated'da kalır.
	// Caller kendi tarafında ringing gösterir ve timeout ile sonlandırır.
	if !s.hub.IsUserOnline(req.ReceiverID) {
		log.Printf("[call] receiver offline, notification dropped: call=%s receiver=%s", call.ID, req.ReceiverID)
		return call, nil
	}

	// 7. Her iki tarafın kullanıcı bilgilerini al (bildirim payload'ı için)
	caller, err := s.userGetter.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.userGetter.GetByID(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	// 8. incoming_call bildirimi — teslim edildiyse ringing'e geç.
	// Teslim edilemezse (receiver tam bu anda koptu) initiated'da kalır.
	delivered := s.hub.BroadcastToUser(req.ReceiverID, ws.Event{
		Op:   ws.OpIncomingCall,
		Data: s.buildBroadcast(call, caller, receiver),
	})
	if !delivered {
		log.Printf("[call] delivery failed, record stays initiated: call=%s", call.ID)
		return call, nil
	}

	if ok, err := s.callRepo.MarkRinging(ctx, call.ID); err != nil {
		return nil, err
	} else if ok {
		call.Status = models.CallStatusRinging
	}

	return call, nil
}

// AcceptCall, çalan bir aramayı kabul eder.
func (s *callService) AcceptCall(ctx context.Context, userID, callID string) (*models.Call, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	// Sadece receiver kabul edebilir
	if call.ReceiverID != userID {
		return nil, fmt.Errorf("%w: only receiver can accept", pkg.ErrForbidden)
	}

	// ringing → active. Guard'lı UPDATE — eşzamanlı accept/end race'inde
	// yalnızca biri kazanır.
	ok, err := s.callRepo.MarkActive(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if call.IsTerminal() {
			return nil, fmt.Errorf("%w: call already ended", pkg.ErrBadRequest)
		}
		return nil, fmt.Errorf("%w: call is not ringing", pkg.ErrBadRequest)
	}

	call, err = s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	log.Printf("[call] accepted: user=%s call=%s", userID, callID)

	// Her iki tarafa bildir — caller tarafında WebRTC negotiation başlar.
	event := ws.Event{Op: ws.OpCallAccepted, Data: call}
	s.hub.BroadcastToUser(call.CallerID, event)
	s.hub.BroadcastToUser(call.ReceiverID, event)

	return call, nil
}

// EndCall, aramayı sonlandırır. Reject, cancel ve normal kapatma aynı geçiştir.
func (s *callService) EndCall(ctx context.Context, userID, callID string, duration int) (*models.Call, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	if !call.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: not part of this call", pkg.ErrForbidden)
	}

	// İdempotent: zaten ended ise kayıt mutate edilmez, mevcut hali döner.
	ok, err := s.callRepo.MarkEnded(ctx, callID, duration)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Printf("[call] end on already-ended call (no-op): user=%s call=%s", userID, callID)
		return call, nil
	}

	call, err = s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	log.Printf("[call] ended: user=%s call=%s duration=%ds", userID, callID, call.Duration)

	event := ws.Event{Op: ws.OpCallEnded, Data: call}
	s.hub.BroadcastToUser(call.CallerID, event)
	s.hub.BroadcastToUser(call.ReceiverID, event)

	return call, nil
}

// RelaySignal, WebRTC signaling verisini karşı tarafa relay eder.
func (s *callService) RelaySignal(ctx context.Context, senderID, callID string, req models.SendSignalRequest) error {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return err
	}

	if !call.IsParticipant(senderID) {
		return fmt.Errorf("%w: not part of this call", pkg.ErrForbidden)
	}

	if call.IsTerminal() {
		return fmt.Errorf("%w: call already ended", pkg.ErrBadRequest)
	}

	// Oda üyeliğine göre relay — karşı taraf henüz join_call yapmadıysa
	// signal düşer. Signaling best-effort'tur; WebRTC ICE retry toleranslıdır.
	s.hub.BroadcastToCallPeers(callID, senderID, ws.Event{
		Op: ws.OpCallSignal,
		Data: models.CallSignal{
			CallID:    callID,
			SenderID:  senderID,
			Type:      req.Type,
			SDP:       req.SDP,
			Candidate: req.Candidate,
		},
	})

	return nil
}

// GetCallHistory, chat'in arama geçmişini döner.
func (s *callService) GetCallHistory(ctx context.Context, userID, chatID string, limit int) ([]models.Call, error) {
	chat, err := s.chatGetter.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: not part of this chat", pkg.ErrForbidden)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	return s.callRepo.ListForChat(ctx, chatID, limit)
}

// HandleDisconnect, kullanıcının son WS bağlantısı koptuğunda çağrılır.
// Devam eden araması varsa sonlandırır ve karşı tarafa bildirir.
func (s *callService) HandleDisconnect(userID string) {
	ctx := context.Background()

	call, err := s.callRepo.GetActiveForUser(ctx, userID)
	if err != nil {
		log.Printf("[call] disconnect lookup failed for user %s: %v", userID, err)
		return
	}
	if call == nil {
		return // Aramada değildi
	}

	// Aktif aramada geçen süre duration olarak yazılır.
	duration := 0
	if call.StartedAt != nil {
		duration = int(time.Since(*call.StartedAt).Seconds())
	}

	ok, err := s.callRepo.MarkEnded(ctx, call.ID, duration)
	if err != nil {
		log.Printf("[call] disconnect end failed for call %s: %v", call.ID, err)
		return
	}
	if !ok {
		return // Başka bir yol zaten sonlandırmış
	}

	log.Printf("[call] ended due to disconnect: user=%s call=%s", userID, call.ID)

	ended, err := s.callRepo.GetByID(ctx, call.ID)
	if err != nil {
		log.Printf("[call] reload after disconnect end failed for call %s: %v", call.ID, err)
		return
	}

	s.hub.BroadcastToUser(call.OtherParty(userID), ws.Event{
		Op:   ws.OpCallEnded,
		Data: ended,
	})
}

// buildBroadcast, incoming_call payload'ını oluşturur.
// Her iki tarafın kullanıcı bilgilerini içerir — receiver UI'ı caller'ın
// adını göstermek için ayrıca fetch yapmaz.
func (s *callService) buildBroadcast(call *models.Call, caller, receiver *models.User) models.CallBroadcast {
	return models.CallBroadcast{
		ID:                  call.ID,
		ChatID:              call.ChatID,
		CallerID:            call.CallerID,
		CallerUsername:      caller.Username,
		CallerDisplayName:   caller.DisplayName,
		ReceiverID:          call.ReceiverID,
		ReceiverUsername:    receiver.Username,
		ReceiverDisplayName: receiver.DisplayName,
		CallType:            call.CallType,
		Status:              models.CallStatusRinging,
		CreatedAt:           call.CreatedAt,
	}
}
