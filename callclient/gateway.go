// Package callclient, arama ekranlarının kullandığı client tarafı kütüphanedir.
//
// Dört parça:
// - Gateway: REST çağrıları + WebSocket event akışı (server ile tek temas noktası)
// - PeerLink: WebRTC peer bağlantısı (pion) — interface arkasında, testlerde fake
// - MediaDevice: yerel ses/kamera yakalama sahipliği
// - Controller / Watcher: arama state machine'i ve gelen arama dinleyicisi
//
// Paket server koduna bağımlı değildir; models ve ws paketlerinden yalnızca
// wire formatını (Call, CallSignal, op sabitleri) paylaşır.
package callclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/ws"
)

const (
	heartbeatInterval = 30 * time.Second
	dialTimeout       = 10 * time.Second
	eventBufferSize   = 64
)

// Event, Gateway'in WS akışından okuyup tipleyerek ilettiği tek bir olaydır.
// Kind, ws paketindeki op sabitlerinden biridir; payload alanlarından yalnızca
// Kind'a uygun olan doludur.
type Event struct {
	Kind      string
	Broadcast *models.CallBroadcast // incoming_call
	Call      *models.Call          // call_accepted, call_ended
	Signal    *models.CallSignal    // call_signal
}

// Gateway, arama backend'i ile tüm iletişimi soyutlar.
// Controller ve Watcher testleri bu interface'in fake'i üzerinde çalışır.
type Gateway interface {
	InitiateCall(ctx context.Context, req models.InitiateCallRequest) (*models.Call, error)
	AcceptCall(ctx context.Context, callID string) (*models.Call, error)
	EndCall(ctx context.Context, callID string, duration int) (*models.Call, error)
	SendSignal(ctx context.Context, callID string, req models.SendSignalRequest) error

	// JoinCall/LeaveCall, CallId odası üyeliğini yönetir (her ikisi idempotent).
	JoinCall(callID string) error
	LeaveCall(callID string) error

	// Events, relay'den gelen arama event'lerinin akışıdır.
	// Gateway kapanınca channel kapanır.
	Events() <-chan Event

	Close() error
}

// httpGateway, Gateway'in REST + gorilla/websocket implementasyonu.
type httpGateway struct {
	baseURL string
	token   string
	http    *http.Client

	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan Event
	closeOnce sync.Once
	done      chan struct{}
}

// Dial, REST client'ı kurar ve WS bağlantısını açar.
//
// baseURL örn: "http://localhost:9090". WS endpoint'i aynı host'ta /ws'dir;
// JWT token query parameter olarak gönderilir (upgrade sırasında tarayıcılar
// custom header gönderemez, server da bu yüzden ?token= bekler).
func Dial(ctx context.Context, baseURL, token string) (Gateway, error) {
	g := &httpGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: dialTimeout},
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
	}

	wsURL, err := g.websocketURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	g.conn = conn

	go g.readLoop()
	go g.heartbeatLoop()

	return g, nil
}

// websocketURL, baseURL'den ws endpoint URL'ini türetir (http→ws, https→wss).
func (g *httpGateway) websocketURL() (string, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = "token=" + url.QueryEscape(g.token)
	return u.String(), nil
}

// ─── REST ───

// apiEnvelope, server'ın standart yanıt zarfı.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// doJSON, body'yi encode edip isteği yapar, zarfı açar ve data'yı out'a çözer.
func (g *httpGateway) doJSON(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		return fmt.Errorf("server error (status %d): %s", resp.StatusCode, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func (g *httpGateway) InitiateCall(ctx context.Context, req models.InitiateCallRequest) (*models.Call, error) {
	var call models.Call
	if err := g.doJSON(ctx, http.MethodPost, "/api/calls/initiate", req, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (g *httpGateway) AcceptCall(ctx context.Context, callID string) (*models.Call, error) {
	var call models.Call
	if err := g.doJSON(ctx, http.MethodPost, "/api/calls/"+callID+"/accept", nil, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (g *httpGateway) EndCall(ctx context.Context, callID string, duration int) (*models.Call, error) {
	var call models.Call
	body := models.EndCallRequest{Duration: duration}
	if err := g.doJSON(ctx, http.MethodPost, "/api/calls/"+callID+"/end", body, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (g *httpGateway) SendSignal(ctx context.Context, callID string, req models.SendSignalRequest) error {
	return g.doJSON(ctx, http.MethodPost, "/api/calls/"+callID+"/signal", req, nil)
}

// ─── WebSocket ───

// wsEnvelope, inbound event'i payload'ı çözmeden okumak için kullanılır.
// ws.Event'in Data alanı `any` olduğundan iki aşamalı decode gerekir.
type wsEnvelope struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  int64           `json:"seq"`
}

func (g *httpGateway) JoinCall(callID string) error {
	return g.writeEvent(ws.Event{Op: ws.OpJoinCall, Data: ws.JoinCallData{CallID: callID}})
}

func (g *httpGateway) LeaveCall(callID string) error {
	return g.writeEvent(ws.Event{Op: ws.OpLeaveCall, Data: ws.JoinCallData{CallID: callID}})
}

func (g *httpGateway) Events() <-chan Event {
	return g.events
}

// writeEvent, WS'e tek bir event yazar. Gorilla'nın WriteJSON'ı concurrent
// yazmaya izin vermez — mutex şart.
func (g *httpGateway) writeEvent(ev ws.Event) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.conn.WriteJSON(ev)
}

// readLoop, inbound event'leri okuyup tipleyerek events channel'ına iletir.
// Arama dışı event'ler (ready, chat_*) burada sessizce atlanır.
//
// events channel'ının tek sahibi bu goroutine'dir: yalnızca burası yazar ve
// yalnızca burası (çıkışta) kapatır. Close'un kapatması yarış üretir —
// decode ile send arasında kapanan channel'a yazım panic'lerdi.
func (g *httpGateway) readLoop() {
	defer func() {
		g.Close()
		close(g.events)
	}()

	for {
		var env wsEnvelope
		if err := g.conn.ReadJSON(&env); err != nil {
			select {
			case <-g.done:
			default:
				log.Printf("[callclient] websocket read error: %v", err)
			}
			return
		}

		ev, ok := g.decodeEvent(env)
		if !ok {
			continue
		}

		select {
		case g.events <- ev:
		default:
			// Tüketici geride kaldı — event düşer. Signaling zaten best-effort,
			// ICE retry mekanizması kayıp candidate'leri tolere eder.
			log.Printf("[callclient] event buffer full, dropping %s", ev.Kind)
		}
	}
}

// decodeEvent, op'a göre payload'ı tipler. Tanınmayan op'lar için ok=false.
func (g *httpGateway) decodeEvent(env wsEnvelope) (Event, bool) {
	switch env.Op {
	case ws.OpIncomingCall:
		var b models.CallBroadcast
		if err := json.Unmarshal(env.Data, &b); err != nil {
			log.Printf("[callclient] bad incoming_call payload: %v", err)
			return Event{}, false
		}
		return Event{Kind: env.Op, Broadcast: &b}, true

	case ws.OpCallAccepted, ws.OpCallEnded:
		var c models.Call
		if err := json.Unmarshal(env.Data, &c); err != nil {
			log.Printf("[callclient] bad %s payload: %v", env.Op, err)
			return Event{}, false
		}
		return Event{Kind: env.Op, Call: &c}, true

	case ws.OpCallSignal:
		var s models.CallSignal
		if err := json.Unmarshal(env.Data, &s); err != nil {
			log.Printf("[callclient] bad call_signal payload: %v", err)
			return Event{}, false
		}
		return Event{Kind: env.Op, Signal: &s}, true
	}

	return Event{}, false
}

// heartbeatLoop, server'ın 90sn read deadline'ını beslemek için
// 30sn'de bir heartbeat gönderir.
func (g *httpGateway) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			if err := g.writeEvent(ws.Event{Op: ws.OpHeartbeat}); err != nil {
				log.Printf("[callclient] heartbeat failed: %v", err)
				return
			}
		}
	}
}

// Close, WS bağlantısını kapatır. İdempotent. events channel'ını readLoop
// kapatır — bağlantı kopunca read hata verir ve loop çıkar.
func (g *httpGateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		err = g.conn.Close()
	})
	return err
}
