package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Client'ın heartbeat göndermesi için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// maxMessageSize: Client'ın gönderebileceği maksimum mesaj boyutu (byte).
	// join_call/leave_call/heartbeat küçük mesajlardır — signaling HTTP'den gider.
	maxMessageSize = 4096

	// sendBufferSize: Her client'ın send channel'ının buffer boyutu.
	// Buffer doluysa client yavaş demektir — disconnect edilir.
	sendBufferSize = 256
)

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır:
// - ReadPump: Client'dan gelen mesajları okur → işler
// - WritePump: Hub'dan gelen mesajları client'a yazar
//
// gorilla/websocket aynı anda tek okuma ve tek yazma destekler —
// iki ayrı goroutine ile okuma ve yazma birbirini bloklamaz.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	// send, client'a gönderilecek mesajların buffer'landığı channel.
	// Yazımlar trySend, kapatma closeSend üzerinden gider — ReadPump'ın
	// heartbeat ack'i ile hub'ın removeClient'ı yarışabilir, kapalı
	// channel'a doğrudan send panic'lerdi.
	send       chan []byte
	sendMu     sync.Mutex
	sendClosed bool

	mu sync.Mutex // conn.WriteMessage çağrılarını korur
}

// trySend, send channel'ına non-blocking yazar.
// Channel kapalıysa veya buffer doluysa false döner.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend, send channel'ını bir kez kapatır. İdempotent.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// ReadPump, WebSocket bağlantısından gelen mesajları okur ve işler.
// Bağlantı kapanana kadar döngüde kalır; kapandığında Hub'dan çıkış yapar.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// SetReadDeadline: Bu süre içinde mesaj gelmezse Read hata verir.
	// Her heartbeat geldiğinde deadline yenilenir.
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
		return
	}

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(rawMessage, &event); err != nil {
			log.Printf("[ws] invalid message from user %s: %v", c.userID, err)
			continue
		}

		c.handleEvent(event)
	}
}

// handleEvent, client'dan gelen event'leri türüne göre işler.
func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		// Heartbeat geldi — deadline'ı yenile ve ack gönder.
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpJoinCall:
		c.handleJoinCall(event)

	case OpLeaveCall:
		c.handleLeaveCall(event)

	default:
		log.Printf("[ws] unknown op from user %s: %s", c.userID, event.Op)
	}
}

// handleJoinCall, join_call event'ini işler.
// Client { op: "join_call", d: { call_id: "abc" } } gönderdiğinde
// kullanıcı CallId odasına eklenir. Oda üyeliği signal relay için gereklidir.
func (c *Client) handleJoinCall(event Event) {
	data, ok := c.parseJoinData(event)
	if !ok {
		return
	}
	c.hub.JoinCall(data.CallID, c.userID)
}

// handleLeaveCall, leave_call event'ini işler.
func (c *Client) handleLeaveCall(event Event) {
	data, ok := c.parseJoinData(event)
	if !ok {
		return
	}
	c.hub.LeaveCall(data.CallID, c.userID)
}

// parseJoinData, join_call/leave_call payload'ını parse eder.
//
// json.Marshal + json.Unmarshal neden?
// event.Data tipi `any`, doğrudan cast edilemez.
// JSON'a çevirip tekrar parse etmek en güvenli yöntem.
func (c *Client) parseJoinData(event Event) (JoinCallData, bool) {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return JoinCallData{}, false
	}

	var data JoinCallData
	if err := json.Unmarshal(dataBytes, &data); err != nil {
		return JoinCallData{}, false
	}

	if data.CallID == "" {
		log.Printf("[ws] %s without call_id from user %s", event.Op, c.userID)
		return JoinCallData{}, false
	}

	return data, true
}

// sendEvent, client'a tek bir event gönderir.
func (c *Client) sendEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event for user %s: %v", c.userID, err)
		return
	}

	if !c.trySend(data) {
		// Buffer dolu veya channel kapanmış — bağlantıyı kapat
		log.Printf("[ws] send failed for user %s, dropping connection", c.userID)
		c.hub.unregister <- c
	}
}

// WritePump, Hub'dan gelen mesajları WebSocket bağlantısına yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			// Channel kapatıldı — Hub client'ı çıkardı
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}

		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// writeMessage, WebSocket'e mesaj yazar.
// gorilla/websocket conn'a aynı anda birden fazla yazma yasak — mutex korur.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
