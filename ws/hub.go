package ws

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// EventPublisher, service katmanının WebSocket event'leri yayınlamak için
// kullandığı interface.
//
// Dependency Inversion: Service'ler Hub'ın concrete struct'ına değil,
// bu interface'e bağımlıdır. Service testlerinde fake publisher kullanılır.
type EventPublisher interface {
	// BroadcastToUser, kullanıcının TÜM bağlantılarına event gönderir ve
	// en az bir bağlantıya teslim edildiyse true döner.
	// Arama bildiriminin "iletildi mi?" kararı bu dönüş değerine bağlıdır.
	BroadcastToUser(userID string, event Event) bool
	// BroadcastToCallPeers, CallId odasındaki excludeUserID dışındaki
	// katılımcılara event gönderir. Signal relay bunu kullanır —
	// gönderen kendi signal'ini asla geri almaz.
	BroadcastToCallPeers(callID, excludeUserID string, event Event)
	IsUserOnline(userID string) bool
	GetOnlineUserIDs() []string
}

// Hub, tüm WebSocket bağlantılarını yöneten merkezi yapıdır (Observer pattern).
//
// İki ayrı üyelik kavramı taşır:
// - clients: userID → Client set. Lifecycle event'leri (incoming_call,
//   call_accepted, call_ended) hesap kimliğine göre buradan dağıtılır.
//   Bir kullanıcının birden fazla tab'ı olabilir — hepsi alır.
// - callRooms: callID → userID set. Signaling mesajları yalnızca odaya
//   join_call ile girmiş hesaplara gider. Oda üyeliği bağlantıdan değil
//   hesaptan tutulur — tab yenilense bile üyelik aynı kalır.
type Hub struct {
	// clients: userID → Client set.
	// Go'da set yoktur, map[*Client]bool kullanılır — bool her zaman true.
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	// callRooms: callID → userID set.
	callRooms map[string]map[string]bool
	roomMu    sync.RWMutex

	// register/unregister: Client giriş/çıkış sinyalleri.
	// Hub.Run() goroutine'i bu channel'lardan select ile okur.
	register   chan *Client
	unregister chan *Client

	// seq: Her outbound event'e verilen artan sayaç.
	// atomic.Int64 — birden fazla goroutine güvenle okuyup yazar.
	seq atomic.Int64

	// onUserDisconnect: Kullanıcının son bağlantısı koptuğunda çağrılır.
	// Devam eden araması varsa CallService sonlandırır (wire-up'ta bağlanır).
	onUserDisconnect func(userID string)
}

// NewHub, yeni bir Hub oluşturur.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		callRooms:  make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// OnUserDisconnect, kullanıcı tamamen koptuğunda çağrılacak callback'i kaydeder.
// Callback ayrı goroutine'de çağrılır — Hub mutex'i ile deadlock oluşmaz.
func (h *Hub) OnUserDisconnect(fn func(userID string)) {
	h.onUserDisconnect = fn
}

// Run, Hub'ın ana event loop'udur. main.go'da `go hub.Run()` ile başlatılır.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// addClient, yeni bir client'ı Hub'a ekler.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	log.Printf("[ws] client connected: user=%s (total connections for user: %d)",
		client.userID, len(h.clients[client.userID]))
}

// removeClient, bir client'ı Hub'dan çıkarır ve send channel'ını kapatır.
// Kullanıcının son bağlantısıysa oda üyelikleri temizlenir ve
// onUserDisconnect tetiklenir.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()

	fullyDisconnected := false
	if clients, ok := h.clients[client.userID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.closeSend()

			if len(clients) == 0 {
				delete(h.clients, client.userID)
				fullyDisconnected = true
				log.Printf("[ws] user fully disconnected: %s", client.userID)
			} else {
				log.Printf("[ws] client disconnected: user=%s (remaining: %d)",
					client.userID, len(clients))
			}
		}
	}
	h.mu.Unlock()

	if fullyDisconnected {
		h.leaveAllRooms(client.userID)
		if h.onUserDisconnect != nil {
			go h.onUserDisconnect(client.userID)
		}
	}
}

// ─── Call Room Operations ───

// JoinCall, kullanıcıyı CallId odasına ekler. İdempotent —
// zaten üye olan kullanıcı için no-op.
func (h *Hub) JoinCall(callID, userID string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	if _, ok := h.callRooms[callID]; !ok {
		h.callRooms[callID] = make(map[string]bool)
	}
	if !h.callRooms[callID][userID] {
		h.callRooms[callID][userID] = true
		log.Printf("[ws] user %s joined call room %s", userID, callID)
	}
}

// LeaveCall, kullanıcıyı CallId odasından çıkarır. İdempotent —
// üye olmayan kullanıcı için no-op. Boşalan oda silinir.
func (h *Hub) LeaveCall(callID, userID string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	if members, ok := h.callRooms[callID]; ok {
		if members[userID] {
			delete(members, userID)
			log.Printf("[ws] user %s left call room %s", userID, callID)
		}
		if len(members) == 0 {
			delete(h.callRooms, callID)
		}
	}
}

// leaveAllRooms, kullanıcıyı tüm CallId odalarından çıkarır (disconnect temizliği).
func (h *Hub) leaveAllRooms(userID string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	for callID, members := range h.callRooms {
		if members[userID] {
			delete(members, userID)
			if len(members) == 0 {
				delete(h.callRooms, callID)
			}
		}
	}
}

// ─── Broadcast Operations ───

// BroadcastToUser, kullanıcının tüm bağlantılarına event gönderir.
// En az bir bağlantının buffer'ına yazıldıysa true döner.
func (h *Hub) BroadcastToUser(userID string, event Event) bool {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal user event: %v", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	if clients, ok := h.clients[userID]; ok {
		for client := range clients {
			if client.trySend(data) {
				delivered = true
			} else {
				// Buffer dolu — bu client yavaş, kapat
				go func(c *Client) { h.unregister <- c }(client)
			}
		}
	}
	return delivered
}

// BroadcastToCallPeers, CallId odasındaki excludeUserID dışındaki üyelere
// event gönderir. Signal relay'in "sadece karşı tarafa, asla gönderene" kuralı
// burada uygulanır.
func (h *Hub) BroadcastToCallPeers(callID, excludeUserID string, event Event) {
	h.roomMu.RLock()
	var peers []string
	for userID := range h.callRooms[callID] {
		if userID != excludeUserID {
			peers = append(peers, userID)
		}
	}
	h.roomMu.RUnlock()

	for _, userID := range peers {
		h.BroadcastToUser(userID, event)
	}
}

// IsUserOnline, kullanıcının en az bir aktif bağlantısı olup olmadığını döner.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetOnlineUserIDs, bağlı olan tüm kullanıcı ID'lerini döner.
func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	return ids
}

// Shutdown, tüm client bağlantılarını kapatır (graceful shutdown).
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.closeSend()
		}
	}
	h.clients = make(map[string]map[*Client]bool)

	h.roomMu.Lock()
	h.callRooms = make(map[string]map[string]bool)
	h.roomMu.Unlock()

	log.Println("[ws] hub shut down, all connections closed")
}
