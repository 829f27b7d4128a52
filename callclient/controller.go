package callclient

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/ws"
)

// Role, Controller'ın aramadaki tarafını belirtir.
type Role string

const (
	RoleCaller   Role = "caller"
	RoleReceiver Role = "receiver"
)

// signalSendTimeout, fire-and-forget signal POST'ları için üst sınır.
const signalSendTimeout = 5 * time.Second

// Controller, açık bir arama ekranının state machine'idir.
//
// Bir Controller instance'ı tek bir aramaya aittir ve local media ile
// PeerLink'in tek sahibidir. Local status optimistiktir ama relay'den gelen
// son event'e her zaman boyun eğer — aynı CallId için relay ne diyorsa
// doğru odur.
//
// Terminal geçiş (End, Reject, remote call_ended, device hatası) her zaman
// aynı teardown yolundan geçer: oda üyeliği bırakılır, link kapatılır,
// media release edilir. Teardown bir kez çalışır; sonraki çağrılar no-op.
type Controller struct {
	tag     string // log etiketi — kısa instance kimliği
	gw      Gateway
	selfID  string
	media   MediaDevice
	newLink PeerLinkFactory

	mu           sync.Mutex
	role         Role
	call         *models.Call
	status       models.CallStatus
	link         PeerLink
	lastOffer    string
	activeSince  time.Time
	finalElapsed int
	tornDown     bool

	onStatus func(models.CallStatus)
}

// NewController, arama yapacak taraf (caller) için boş bir Controller oluşturur.
// Arama PlaceCall ile başlar.
func NewController(gw Gateway, selfID string, media MediaDevice, newLink PeerLinkFactory) *Controller {
	return &Controller{
		tag:     uuid.NewString()[:8],
		gw:      gw,
		selfID:  selfID,
		media:   media,
		newLink: newLink,
	}
}

// NewIncomingController, gelen bir arama için receiver rolünde Controller
// oluşturur. Watcher, incoming_call bildirimini alınca bunu kurar;
// arama Accept ile devam eder.
func NewIncomingController(gw Gateway, selfID string, media MediaDevice, newLink PeerLinkFactory, call *models.Call) *Controller {
	return &Controller{
		tag:     uuid.NewString()[:8],
		gw:      gw,
		selfID:  selfID,
		media:   media,
		newLink: newLink,
		role:    RoleReceiver,
		call:    call,
		status:  models.CallStatusRinging,
	}
}

// OnStatusChange, local status her değiştiğinde çağrılacak callback'i kaydeder.
// UI render'ı bu callback'ten beslenir.
func (c *Controller) OnStatusChange(fn func(models.CallStatus)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// Status, Controller'ın güncel local status'unu döner.
func (c *Controller) Status() models.CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Call, aramanın kaydını döner (PlaceCall/NewIncomingController sonrası non-nil).
func (c *Controller) Call() *models.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call
}

// PlaceCall, yeni bir arama başlatır (caller rolü).
//
// Kayıt oluşturulur, local status optimistik olarak ringing'e geçer ve
// negotiation BEKLEMEDEN başlar: media → link → offer → send. Receiver
// accept ettiği anda medya hazırdır — "accept'ten sonra 5 saniye siyah
// ekran" yaşanmaz.
func (c *Controller) PlaceCall(ctx context.Context, chatID, receiverID string, callType models.CallType) (*models.Call, error) {
	c.mu.Lock()
	if c.call != nil || c.tornDown {
		c.mu.Unlock()
		return nil, fmt.Errorf("controller already used for a call")
	}
	c.role = RoleCaller
	c.mu.Unlock()

	call, err := c.gw.InitiateCall(ctx, models.InitiateCallRequest{
		ChatID:     chatID,
		ReceiverID: receiverID,
		CallType:   callType,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.call = call
	c.mu.Unlock()
	c.setStatus(models.CallStatusRinging)

	if err := c.gw.JoinCall(call.ID); err != nil {
		log.Printf("[call %s] join room failed: %v", c.tag, err)
	}

	if err := c.beginNegotiation(ctx, call.CallType == models.CallTypeVideo); err != nil {
		return nil, err
	}

	log.Printf("[call %s] placed %s call %s → %s", c.tag, call.CallType, call.ID, receiverID)
	return call, nil
}

// Accept, gelen aramayı kabul eder (receiver rolü, sadece ringing'den geçerli).
//
// Media ve link, REST accept'ten ÖNCE kurulur — kabul anında caller'ın
// offer'ı gelirse cevaplanmaya hazır oluruz.
func (c *Controller) Accept(ctx context.Context) error {
	c.mu.Lock()
	if c.role != RoleReceiver {
		c.mu.Unlock()
		return fmt.Errorf("only the receiver can accept")
	}
	if c.tornDown || c.status != models.CallStatusRinging {
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("cannot accept call in status %q", status)
	}
	call := c.call
	c.mu.Unlock()

	if err := c.buildLink(call.CallType == models.CallTypeVideo); err != nil {
		c.abortOnDeviceError(call, err)
		return err
	}

	if err := c.gw.JoinCall(call.ID); err != nil {
		log.Printf("[call %s] join room failed: %v", c.tag, err)
	}

	updated, err := c.gw.AcceptCall(ctx, call.ID)
	if err != nil {
		// Karşı taraf bu arada kapatmış olabilir — local'i sessizce topla,
		// backend'e ayrıca end göndermeye gerek yok.
		c.teardown()
		return err
	}

	c.mu.Lock()
	if c.tornDown {
		// Accept REST'i uçuştayken arama sonlandı (remote end veya End çağrısı).
		// Teardown tamamlandı; ended terminal kalır — arama diriltilmez.
		c.mu.Unlock()
		return fmt.Errorf("call ended during accept")
	}
	c.call = updated
	c.activeSince = time.Now()
	c.mu.Unlock()
	c.setStatus(models.CallStatusActive)

	log.Printf("[call %s] accepted call %s", c.tag, call.ID)
	return nil
}

// Reject, gelen aramayı reddeder. End ile aynı geçiştir (duration 0).
func (c *Controller) Reject(ctx context.Context) error {
	return c.End(ctx)
}

// End, aramayı sonlandırır. Her state'den çağrılabilir ve idempotenttir —
// ikinci ve sonraki çağrılar no-op. Unmount cleanup'ı da bu yoldan geçer.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return nil
	}
	call := c.call
	duration := c.elapsedLocked()
	c.mu.Unlock()

	c.teardown()

	if call == nil {
		return nil
	}

	if _, err := c.gw.EndCall(ctx, call.ID, duration); err != nil {
		// Backend end idempotenttir; karşı taraf zaten kapatmışsa da
		// kayıt ended durumdadır. Local teardown tamamlandı.
		log.Printf("[call %s] end notify failed: %v", c.tag, err)
		return err
	}

	log.Printf("[call %s] ended call %s (duration=%ds)", c.tag, call.ID, duration)
	return nil
}

// HandleEvent, relay'den gelen bir arama event'ini işler.
// Watcher'ın dispatch loop'u aktif Controller'a event'leri buradan iletir.
func (c *Controller) HandleEvent(ev Event) {
	switch ev.Kind {
	case ws.OpCallAccepted:
		c.handleAccepted(ev.Call)
	case ws.OpCallEnded:
		c.handleRemoteEnded(ev.Call)
	case ws.OpCallSignal:
		c.HandleSignal(*ev.Signal)
	}
}

// handleAccepted, call_accepted bildirimini işler.
//
// Caller tarafında offer yeniden gönderilir: ilk offer, receiver henüz
// CallId odasına katılmadan relay edilmiş ve düşmüş olabilir. Signaling
// idempotenttir — duplicate offer receiver'da aynı answer'ı üretir.
func (c *Controller) handleAccepted(call *models.Call) {
	c.mu.Lock()
	if c.isStaleLocked(call.ID) {
		c.mu.Unlock()
		log.Printf("[call %s] stale call_accepted for %s, ignoring", c.tag, call.ID)
		return
	}
	c.call = call
	if c.activeSince.IsZero() {
		c.activeSince = time.Now()
	}
	role := c.role
	offer := c.lastOffer
	c.mu.Unlock()

	c.setStatus(models.CallStatusActive)

	if role == RoleCaller && offer != "" {
		c.sendSignal(call.ID, models.SendSignalRequest{
			Type: models.SignalTypeOffer,
			SDP:  offer,
		})
	}
}

// handleRemoteEnded, karşı tarafın (veya bağlantı kopmasının) sonlandırdığı
// aramayı işler. Backend'e ayrıca end gönderilmez — kayıt zaten ended.
func (c *Controller) handleRemoteEnded(call *models.Call) {
	c.mu.Lock()
	if c.isStaleLocked(call.ID) {
		c.mu.Unlock()
		log.Printf("[call %s] stale call_ended for %s, ignoring", c.tag, call.ID)
		return
	}
	c.call = call
	c.mu.Unlock()

	log.Printf("[call %s] remote ended call %s", c.tag, call.ID)
	c.teardown()
}

// HandleSignal, karşı taraftan relay edilen bir WebRTC sinyalini işler.
//
// Kendi gönderdiğimiz sinyaller yok sayılır (relay zaten geri göndermez,
// bu ikinci bir emniyettir). Link henüz yokken gelen answer/candidate bir
// protokol sıralama ihlalidir — crash yerine warning ile düşürülür.
func (c *Controller) HandleSignal(sig models.CallSignal) {
	if sig.SenderID == c.selfID {
		return
	}

	c.mu.Lock()
	if c.isStaleLocked(sig.CallID) {
		c.mu.Unlock()
		log.Printf("[call %s] stale signal for %s, ignoring", c.tag, sig.CallID)
		return
	}
	link := c.link
	c.mu.Unlock()

	if link == nil {
		log.Printf("[call %s] %s arrived before peer link exists, dropping", c.tag, sig.Type)
		return
	}

	switch sig.Type {
	case models.SignalTypeOffer:
		answer, err := link.HandleOffer(sig.SDP)
		if err != nil {
			log.Printf("[call %s] handle offer: %v", c.tag, err)
			return
		}
		c.sendSignal(sig.CallID, models.SendSignalRequest{
			Type: models.SignalTypeAnswer,
			SDP:  answer,
		})

	case models.SignalTypeAnswer:
		if err := link.HandleAnswer(sig.SDP); err != nil {
			log.Printf("[call %s] handle answer: %v", c.tag, err)
		}

	case models.SignalTypeCandidate:
		if err := link.AddCandidate(sig.Candidate); err != nil {
			log.Printf("[call %s] add candidate: %v", c.tag, err)
		}
	}
}

// ToggleMicrophone, mikrofonu açıp kapatır; yeni muted durumunu döner.
func (c *Controller) ToggleMicrophone() bool { return c.media.ToggleMicrophone() }

// ToggleCamera, kamerayı açıp kapatır; yeni kapalı durumunu döner.
func (c *Controller) ToggleCamera() bool { return c.media.ToggleCamera() }

// ToggleSpeaker, hoparlörü açıp kapatır; yeni kapalı durumunu döner.
func (c *Controller) ToggleSpeaker() bool { return c.media.ToggleSpeaker() }

// ElapsedSeconds, konuşma süresini döner. Sayaç yalnızca arama active iken
// ilerler; teardown sonrası son değer sabit kalır.
func (c *Controller) ElapsedSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

// ─── İç mekanizma ───

// beginNegotiation, caller tarafında media + link + offer akışını yürütür.
func (c *Controller) beginNegotiation(ctx context.Context, video bool) error {
	c.mu.Lock()
	call := c.call
	c.mu.Unlock()

	if err := c.buildLink(video); err != nil {
		c.abortOnDeviceError(call, err)
		return err
	}

	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	offer, err := link.CreateOffer()
	if err != nil {
		err = fmt.Errorf("offer negotiation failed: %w", err)
		c.abortOnDeviceError(call, err)
		return err
	}

	c.mu.Lock()
	c.lastOffer = offer
	c.mu.Unlock()

	c.sendSignal(call.ID, models.SendSignalRequest{
		Type: models.SignalTypeOffer,
		SDP:  offer,
	})
	return nil
}

// buildLink, media'yı acquire edip yeni bir PeerLink kurar.
// Controller başına aynı anda en fazla bir canlı link olur.
func (c *Controller) buildLink(video bool) error {
	if err := c.media.Acquire(video); err != nil {
		return err
	}

	link, err := c.newLink(c.media, video)
	if err != nil {
		c.media.Release()
		return fmt.Errorf("peer link setup failed: %w", err)
	}

	c.mu.Lock()
	call := c.call
	if c.tornDown {
		// End, link kurulurken yarıştı — yeni link hemen kapatılır.
		c.mu.Unlock()
		_ = link.Close()
		return fmt.Errorf("call already ended")
	}
	c.link = link
	c.mu.Unlock()

	link.OnCandidate(func(candidate string) {
		c.sendSignal(call.ID, models.SendSignalRequest{
			Type:      models.SignalTypeCandidate,
			Candidate: candidate,
		})
	})
	link.OnConnected(func() {
		log.Printf("[call %s] peer transport connected", c.tag)
		c.mu.Lock()
		if c.status == models.CallStatusActive && c.activeSince.IsZero() {
			c.activeSince = time.Now()
		}
		c.mu.Unlock()
	})

	return nil
}

// abortOnDeviceError, media/link kurulumu başarısız olduğunda aramayı toplar
// ve backend'e end bildirir — karşı taraf sonsuza kadar çalıyor görmesin.
func (c *Controller) abortOnDeviceError(call *models.Call, cause error) {
	log.Printf("[call %s] aborting call: %v", c.tag, cause)
	c.teardown()

	if call == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), signalSendTimeout)
	defer cancel()
	if _, err := c.gw.EndCall(ctx, call.ID, 0); err != nil {
		log.Printf("[call %s] abort end notify failed: %v", c.tag, err)
	}
}

// sendSignal, fire-and-forget signal gönderimi. Hata local state'i bloklamaz;
// relay teslimat garantisi vermez, ICE retry kayıpları tolere eder.
func (c *Controller) sendSignal(callID string, req models.SendSignalRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), signalSendTimeout)
	defer cancel()

	if err := c.gw.SendSignal(ctx, callID, req); err != nil {
		log.Printf("[call %s] signal send failed (%s): %v", c.tag, req.Type, err)
	}
}

// teardown, tüm kaynakları bir kez bırakır: oda üyeliği, link, media.
// Her terminal yol buradan geçer.
func (c *Controller) teardown() {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	c.finalElapsed = c.elapsedLocked()
	call := c.call
	link := c.link
	c.link = nil
	c.mu.Unlock()

	if call != nil {
		if err := c.gw.LeaveCall(call.ID); err != nil {
			log.Printf("[call %s] leave room failed: %v", c.tag, err)
		}
	}
	if link != nil {
		_ = link.Close()
	}
	c.media.Release()

	c.setStatus(models.CallStatusEnded)
}

// elapsedLocked — c.mu tutulurken çağrılmalı.
func (c *Controller) elapsedLocked() int {
	if c.tornDown {
		return c.finalElapsed
	}
	if c.status == models.CallStatusActive && !c.activeSince.IsZero() {
		return int(time.Since(c.activeSince).Seconds())
	}
	return 0
}

// isStaleLocked, event'in bu Controller'ın aramasına ait olup olmadığını
// kontrol eder — c.mu tutulurken çağrılmalı.
func (c *Controller) isStaleLocked(callID string) bool {
	return c.call == nil || c.call.ID != callID || c.tornDown
}

// setStatus, local status'u günceller ve değiştiyse callback'i tetikler.
// ended terminaldir — teardown sonrası gecikmiş bir geçiş status'u değiştiremez.
func (c *Controller) setStatus(status models.CallStatus) {
	c.mu.Lock()
	if c.status == status || c.status == models.CallStatusEnded {
		c.mu.Unlock()
		return
	}
	c.status = status
	fn := c.onStatus
	c.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}
