package callclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/ws"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveGatewayWS, /ws endpoint'inde token bekleyip bağlantıyı yükselten ve
// handler'a devreden bir test server'ı kurar.
func serveGatewayWS(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGatewayDial_DeliversTypedEvents(t *testing.T) {
	srv := serveGatewayWS(t, func(conn *websocket.Conn) {
		call := models.Call{ID: "call-1", Status: models.CallStatusEnded}
		if err := conn.WriteJSON(ws.Event{Op: ws.OpCallEnded, Data: call, Seq: 1}); err != nil {
			t.Errorf("write event: %v", err)
			return
		}
		// Bağlantıyı client kapatana kadar açık tut.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	g, err := Dial(context.Background(), srv.URL, "test-token")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer g.Close()

	select {
	case ev := <-g.Events():
		if ev.Kind != ws.OpCallEnded {
			t.Errorf("kind = %s, want %s", ev.Kind, ws.OpCallEnded)
		}
		if ev.Call == nil || ev.Call.ID != "call-1" {
			t.Errorf("call payload = %+v, want call-1", ev.Call)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestGatewayClose_DuringInboundBurst(t *testing.T) {
	srv := serveGatewayWS(t, func(conn *websocket.Conn) {
		// Close ile yarışacak sürekli bir inbound akış.
		call := models.Call{ID: "call-1", Status: models.CallStatusActive}
		for {
			if err := conn.WriteJSON(ws.Event{Op: ws.OpCallAccepted, Data: call}); err != nil {
				return
			}
		}
	})

	g, err := Dial(context.Background(), srv.URL, "test-token")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Akışın başladığından emin ol.
	select {
	case <-g.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no event received before close")
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// readLoop kalan event'leri bitirip channel'ı kendisi kapatır — event'ler
	// hâlâ uçuştayken kapanmak panic'lememeli ve channel kapanmalı.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-g.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after Close")
		}
	}
}
