package callclient

import (
	"context"
	"log"
	"sync"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/ws"
)

// IncomingCall, Watcher'ın yüzeye çıkardığı gelen arama bildirimidir.
//
// Accept, receiver rolünde taze bir Controller kurup aramayı kabul eder;
// Reject aramayı Controller kurmadan reddeder. Kullanıcı hangi ekranda
// olursa olsun bu ikisinden biriyle yanıt verir (veya arama zaman aşımına
// karşı tarafın cancel'ı ile düşer).
type IncomingCall struct {
	Call        *models.Call
	Counterpart string // karşı tarafın görünen adı (display name yoksa username)

	Accept func(ctx context.Context) (*Controller, error)
	Reject func(ctx context.Context) error
}

// Watcher, oturum başına bir tane kurulan gelen arama dinleyicisidir.
//
// Gateway'in event akışının TEK tüketicisidir: gelen arama bildirimlerini
// yüzeye çıkarır, diğer arama event'lerini (accepted/ended/signal) o an
// aktif olan Controller'a yönlendirir. Event akışını iki yerden okumak
// yarış üretir — dispatch tek noktadan yapılır.
type Watcher struct {
	gw       Gateway
	selfID   string
	newLink  PeerLinkFactory
	newMedia func() MediaDevice

	mu       sync.Mutex
	active   *Controller
	surfaced *models.Call // yüzeydeki gelen arama (henüz accept edilmemiş)

	onIncoming  func(*IncomingCall)
	onDismissed func(callID string)
}

// NewWatcher, constructor. newMedia her gelen arama için taze bir MediaDevice
// üretir — cihaz sahipliği Controller instance'ları arasında paylaşılmaz.
func NewWatcher(gw Gateway, selfID string, newMedia func() MediaDevice, newLink PeerLinkFactory) *Watcher {
	return &Watcher{
		gw:       gw,
		selfID:   selfID,
		newMedia: newMedia,
		newLink:  newLink,
	}
}

// OnIncoming, gelen arama yüzeye çıktığında çağrılacak callback'i kaydeder.
func (w *Watcher) OnIncoming(fn func(*IncomingCall)) {
	w.mu.Lock()
	w.onIncoming = fn
	w.mu.Unlock()
}

// OnDismissed, yüzeydeki gelen arama accept edilmeden sonlandığında
// (caller cancel etti, başka cihazda cevaplandı) çağrılır — UI bildirimi kaldırır.
func (w *Watcher) OnDismissed(fn func(callID string)) {
	w.mu.Lock()
	w.onDismissed = fn
	w.mu.Unlock()
}

// Attach, dışarıda kurulmuş bir Controller'ı (PlaceCall yapan caller tarafı)
// event yönlendirmesine bağlar.
func (w *Watcher) Attach(c *Controller) {
	w.mu.Lock()
	w.active = c
	w.mu.Unlock()
}

// Detach, aktif Controller bağlantısını kaldırır (arama ekranı kapandı).
func (w *Watcher) Detach() {
	w.mu.Lock()
	w.active = nil
	w.mu.Unlock()
}

// Run, event akışını tüketir. ctx iptaline veya gateway kapanana kadar bloklar.
// Oturum başına bir goroutine'de çalıştırılır: `go watcher.Run(ctx)`.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.gw.Events():
			if !ok {
				return
			}
			w.dispatch(ev)
		}
	}
}

// dispatch, tek bir event'i yönlendirir.
func (w *Watcher) dispatch(ev Event) {
	switch ev.Kind {
	case ws.OpIncomingCall:
		w.handleIncoming(ev.Broadcast)

	case ws.OpCallAccepted, ws.OpCallEnded:
		w.handleLifecycle(ev)

	case ws.OpCallSignal:
		w.forwardToActive(ev)
	}
}

// handleIncoming, incoming_call bildirimini işler.
// ReceiverID bu hesaba ait değilse (olmamalı — relay hesaba göre yönlendirir)
// bildirim düşürülür.
func (w *Watcher) handleIncoming(b *models.CallBroadcast) {
	if b.ReceiverID != w.selfID {
		log.Printf("[watcher] incoming_call for foreign receiver %s, dropping", b.ReceiverID)
		return
	}

	call := &models.Call{
		ID:         b.ID,
		ChatID:     b.ChatID,
		CallerID:   b.CallerID,
		ReceiverID: b.ReceiverID,
		CallType:   b.CallType,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt,
	}

	counterpart := b.CallerUsername
	if b.CallerDisplayName != nil && *b.CallerDisplayName != "" {
		counterpart = *b.CallerDisplayName
	}

	w.mu.Lock()
	w.surfaced = call
	fn := w.onIncoming
	w.mu.Unlock()

	ic := &IncomingCall{
		Call:        call,
		Counterpart: counterpart,
		Accept: func(ctx context.Context) (*Controller, error) {
			ctrl := NewIncomingController(w.gw, w.selfID, w.newMedia(), w.newLink, call)
			if err := ctrl.Accept(ctx); err != nil {
				return nil, err
			}
			w.mu.Lock()
			w.active = ctrl
			w.surfaced = nil
			w.mu.Unlock()
			return ctrl, nil
		},
		Reject: func(ctx context.Context) error {
			w.mu.Lock()
			w.surfaced = nil
			w.mu.Unlock()
			_, err := w.gw.EndCall(ctx, call.ID, 0)
			return err
		},
	}

	log.Printf("[watcher] incoming %s call %s from %s", b.CallType, b.ID, counterpart)
	if fn != nil {
		fn(ic)
	}
}

// handleLifecycle, call_accepted/call_ended event'lerini işler.
//
// Yüzeydeki (henüz accept edilmemiş) arama için gelen call_ended bildirimi
// UI'ı kapatır; diğer her şey aktif Controller'a gider. Ne yüzeydeki ne de
// aktif aramaya ait olmayan CallId'ler stale'dir ve yok sayılır.
func (w *Watcher) handleLifecycle(ev Event) {
	w.mu.Lock()
	surfaced := w.surfaced
	dismissed := w.onDismissed
	w.mu.Unlock()

	if surfaced != nil && ev.Call.ID == surfaced.ID {
		if ev.Kind == ws.OpCallEnded {
			w.mu.Lock()
			w.surfaced = nil
			w.mu.Unlock()
			log.Printf("[watcher] surfaced call %s ended before answer", ev.Call.ID)
			if dismissed != nil {
				dismissed(ev.Call.ID)
			}
		}
		// Yüzeydeki arama için call_accepted: başka cihazda cevaplanmış
		// olabilir — bu cihazdaki bildirim yerinde kalır, Controller yok.
		return
	}

	w.forwardToActive(ev)
}

// forwardToActive, event'i aktif Controller'a iletir; yoksa stale kabul edilir.
func (w *Watcher) forwardToActive(ev Event) {
	w.mu.Lock()
	active := w.active
	w.mu.Unlock()

	if active == nil {
		log.Printf("[watcher] no active call, ignoring %s", ev.Kind)
		return
	}
	active.HandleEvent(ev)
}
