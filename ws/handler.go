package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ferhatk/pazar/models"
)

// TokenValidator, WebSocket handler'ın JWT doğrulaması için kullandığı interface.
//
// Neden services.AuthService yerine kendi interface'imiz?
// Circular dependency önlenir:
// - services paketi ws.EventPublisher'ı kullanıyor (broadcast için)
// - ws paketi services'i kullansaydı → ws → services → ws döngüsü oluşurdu
//
// Ayrıca WS handler'ın AuthService'in tüm metodlarına ihtiyacı yok —
// sadece ValidateAccessToken yeterli (Interface Segregation).
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// upgrader, HTTP bağlantısını WebSocket bağlantısına yükseltir.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin: Production'da domain kontrolü yapılmalı.
	// Şimdilik tüm origin'lere izin veriyoruz (development için).
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler, WebSocket bağlantı isteklerini işleyen HTTP handler'ı.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
}

// NewHandler, yeni bir WebSocket handler oluşturur.
func NewHandler(hub *Hub, tokenValidator TokenValidator) *Handler {
	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
	}
}

// HandleConnection, HTTP bağlantısını WebSocket'e yükseltir ve client'ı Hub'a kaydeder.
//
// Tarayıcı WebSocket API'si custom header göndermeye izin vermez —
// bu yüzden token URL query parameter olarak gelir:
//
//	ws://server/ws?token=JWT_TOKEN
//
// Flow:
// 1. Query'den token al, doğrula
// 2. HTTP → WebSocket upgrade
// 3. Client oluştur, Hub'a kaydet
// 4. ready event gönder, pump goroutine'lerini başlat
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for user %s: %v", claims.UserID, err)
		return
	}

	client := &Client{
		hub:    h.hub,
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan []byte, sendBufferSize),
	}

	h.hub.register <- client

	// İlk event: ready — client online kullanıcı listesini alır.
	client.sendEvent(Event{
		Op:   OpReady,
		Data: ReadyData{OnlineUserIDs: h.hub.GetOnlineUserIDs()},
	})

	// WritePump ayrı goroutine'de, ReadPump bu goroutine'de çalışır.
	// ReadPump bağlantı kapanana kadar bloklar — HTTP handler açık kalır.
	go client.WritePump()
	client.ReadPump()
}
