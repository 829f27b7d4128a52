// Package ws, WebSocket bağlantı yönetimi ve gerçek zamanlı event dağıtımını sağlar.
//
// Mimari:
// - Hub: Tüm bağlantıları ve CallId odalarını yöneten merkezi yapı (Observer pattern)
// - Client: Her WebSocket bağlantısını temsil eder
// - Event: Client-server arası iletilen mesaj formatı
//
// Arama event akışı:
// 1. Caller arama başlatır → HTTP POST → CallService → DB kayıt
// 2. CallService, Hub'ın BroadcastToUser metodunu çağırır (incoming_call)
// 3. Her iki taraf join_call ile CallId odasına girer
// 4. Signaling mesajları odadaki karşı tarafa relay edilir (call_signal)
package ws

// Event, WebSocket üzerinden iletilen bir mesajı temsil eder.
//
// Op (operation): Event türü — "incoming_call", "heartbeat" vb.
// Data: Event'e özgü payload.
// Seq: Her outbound event'e verilen artan sayı.
//   Frontend eksik event tespit etmek için seq'i takip eder.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client → Server operasyonları
const (
	OpHeartbeat = "heartbeat"  // Client her 30sn'de gönderir — "hâlâ bağlıyım" sinyali
	OpJoinCall  = "join_call"  // CallId odasına katıl (signal almak için) — idempotent
	OpLeaveCall = "leave_call" // CallId odasından ayrıl — idempotent
)

// Server → Client operasyonları
const (
	OpReady        = "ready"         // Bağlantı kurulduğunda ilk gönderilen
	OpHeartbeatAck = "heartbeat_ack" // Heartbeat'e yanıt — "seni duydum"

	// Chat operasyonları
	OpChatCreate        = "chat_create"         // Yeni chat kanalı oluşturuldu
	OpChatMessageCreate = "chat_message_create" // Yeni chat mesajı gönderildi

	// Arama lifecycle operasyonları — hesap kimliğine göre iletilir
	// (kullanıcının tüm bağlantıları alır, oda üyeliği gerekmez).
	OpIncomingCall = "incoming_call" // Gelen arama bildirimi (receiver'a)
	OpCallAccepted = "call_accepted" // Arama kabul edildi (her iki tarafa)
	OpCallEnded    = "call_ended"    // Arama sonlandırıldı (her iki tarafa)

	// Signaling — CallId odasındaki karşı tarafa iletilir, gönderene asla dönmez.
	OpCallSignal = "call_signal"
)

// ReadyData, bağlantı kurulduğunda client'a gönderilen ilk event'in payload'ı.
type ReadyData struct {
	OnlineUserIDs []string `json:"online_user_ids"`
}

// JoinCallData, join_call ve leave_call event'lerinin Client → Server payload'ı.
type JoinCallData struct {
	CallID string `json:"call_id"`
}
