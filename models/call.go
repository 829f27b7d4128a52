// Package models — Call domain modeli.
//
// Alıcı-satıcı arası 1:1 sesli/görüntülü arama sistemi:
// - "initiated": Arama kaydı oluşturuldu, karşı tarafa henüz ulaşılmadı
// - "ringing":   Gelen arama bildirimi karşı tarafa iletildi, çalıyor
// - "active":    Arama kabul edildi, WebRTC bağlantısı kuruldu
// - "ended":     Arama sonlandırıldı — terminal state, geri dönüş yok
//
// CallType:
// - "voice": Sadece sesli arama
// - "video": Görüntülü arama (ses + kamera)
//
// Call kaydı kalıcıdır (sqlite) — arama geçmişi sohbet ekranında gösterilir.
// Status geçişleri monotondur: initiated → ringing → active → ended,
// artı reject/cancel kısayolları (initiated → ended, ringing → ended).
// "ended" olmuş bir kayıt bir daha mutate edilmez.
package models

import (
	"fmt"
	"time"
)

// CallType, arama türünü temsil eden typed constant.
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallStatus, arama durumunu temsil eden typed constant.
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusActive    CallStatus = "active"
	CallStatusEnded     CallStatus = "ended"
)

// Call, bir 1:1 aramayı temsil eder. Her CallId için tek kayıt vardır.
//
// CallerID/ReceiverID arama boyunca değişmez. StartedAt arama "active"
// olduğunda, Duration (saniye) arama "ended" olduğunda set edilir.
type Call struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chat_id"`
	CallerID   string     `json:"caller_id"`
	ReceiverID string     `json:"receiver_id"`
	CallType   CallType   `json:"call_type"`
	Status     CallStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"` // Nullable — accept edilmemiş aramada nil
	Duration   int        `json:"duration"`   // Saniye — ended olana kadar 0
}

// OtherParty, aramanın verilen kullanıcı dışındaki katılımcısını döner.
// Relay'in "sadece karşı tarafa ilet" kuralının tek kaynağı budur.
func (c *Call) OtherParty(userID string) string {
	if c.CallerID == userID {
		return c.ReceiverID
	}
	return c.CallerID
}

// IsParticipant, kullanıcının aramanın tarafı olup olmadığını döner.
func (c *Call) IsParticipant(userID string) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}

// IsTerminal, aramanın sonlanmış olup olmadığını döner.
func (c *Call) IsTerminal() bool {
	return c.Status == CallStatusEnded
}

// CallBroadcast, arama event'lerinde broadcast edilen payload.
// Hem caller hem receiver bilgilerini taşır — her iki taraf da
// karşı tarafın adını/avatarını gösterir.
type CallBroadcast struct {
	ID                  string     `json:"id"`
	ChatID              string     `json:"chat_id"`
	CallerID            string     `json:"caller_id"`
	CallerUsername      string     `json:"caller_username"`
	CallerDisplayName   *string    `json:"caller_display_name"`
	ReceiverID          string     `json:"receiver_id"`
	ReceiverUsername    string     `json:"receiver_username"`
	ReceiverDisplayName *string    `json:"receiver_display_name"`
	CallType            CallType   `json:"call_type"`
	Status              CallStatus `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
}

// InitiateCallRequest, POST /api/calls/initiate isteği.
type InitiateCallRequest struct {
	ChatID     string   `json:"chat_id"`
	ReceiverID string   `json:"receiver_id"`
	CallType   CallType `json:"call_type"`
}

// Validate, InitiateCallRequest'in geçerli olup olmadığını kontrol eder.
func (r *InitiateCallRequest) Validate() error {
	if r.ChatID == "" {
		return fmt.Errorf("chat_id is required")
	}
	if r.ReceiverID == "" {
		return fmt.Errorf("receiver_id is required")
	}
	if r.CallType != CallTypeVoice && r.CallType != CallTypeVideo {
		return fmt.Errorf("call_type must be 'voice' or 'video'")
	}
	return nil
}

// EndCallRequest, POST /api/calls/{id}/end isteği.
// Duration client'ın ölçtüğü konuşma süresidir (saniye).
type EndCallRequest struct {
	Duration int `json:"duration"`
}

// Validate, EndCallRequest'in geçerli olup olmadığını kontrol eder.
func (r *EndCallRequest) Validate() error {
	if r.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	return nil
}

// SignalType, WebRTC signaling mesaj türü.
type SignalType string

const (
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "ice-candidate"
)

// CallSignal, WebRTC signaling verisi — SDP offer/answer veya ICE candidate.
//
// Transient'tir: hiçbir zaman DB'ye yazılmaz, sadece relay edilir.
// Server içeriğe bakmaz — SDP ve Candidate opak blob'lardır.
// Bir signal yalnızca CallId'nin SenderID dışındaki katılımcısına iletilir.
//
// SDP (Session Description Protocol): iki tarafın medya yeteneklerini
// tanımlayan metin. "Offer" önerilir, "Answer" olarak yanıtlanır.
// ICE candidate: NAT arkasındaki cihazların birbirini bulması için
// alışverişi yapılan bağlantı yolu tanımı.
type CallSignal struct {
	CallID    string     `json:"call_id"`
	SenderID  string     `json:"sender_id"`
	Type      SignalType `json:"type"`
	SDP       string     `json:"sdp,omitempty"`       // offer/answer metni
	Candidate string     `json:"candidate,omitempty"` // serialize edilmiş RTCIceCandidateInit
}

// SendSignalRequest, POST /api/calls/{id}/signal isteği.
type SendSignalRequest struct {
	Type      SignalType `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate string     `json:"candidate,omitempty"`
}

// Validate, SendSignalRequest'in geçerli olup olmadığını kontrol eder.
// SDP/Candidate içeriği doğrulanmaz — server için opak blob'lardır.
func (r *SendSignalRequest) Validate() error {
	switch r.Type {
	case SignalTypeOffer, SignalTypeAnswer:
		if r.SDP == "" {
			return fmt.Errorf("sdp is required for %s", r.Type)
		}
	case SignalTypeCandidate:
		if r.Candidate == "" {
			return fmt.Errorf("candidate is required for %s", r.Type)
		}
	default:
		return fmt.Errorf("type must be 'offer', 'answer' or 'ice-candidate'")
	}
	return nil
}
