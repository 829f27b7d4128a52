package callclient

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ErrDeviceUnavailable — mikrofon/kamera açılamadı (izin reddi, cihaz yok,
// başka uygulama tarafından kilitli). Controller bu hatayı alınca aramayı
// "ended"a düşürür; yarım kurulmuş transport bırakmaz.
var ErrDeviceUnavailable = errors.New("media device unavailable")

// MediaDevice, yerel ses/kamera yakalamanın sahipliğini soyutlar.
//
// Bir MediaDevice tek bir Controller'a aittir; instance'lar arasında
// paylaşılmaz. Release her terminal geçişte çağrılır ve idempotenttir.
type MediaDevice interface {
	// Acquire, cihazları açar. video=false ise yalnızca mikrofon.
	// Başarısızlıkta ErrDeviceUnavailable ile wrap edilmiş hata döner.
	Acquire(video bool) error

	// Tracks, negotiation'a eklenecek local track'leri döner.
	// Acquire çağrılmadan boş döner.
	Tracks() []webrtc.TrackLocal

	// ToggleMicrophone/ToggleCamera/ToggleSpeaker, ilgili yüzeyi açıp kapatır
	// ve yeni kapalı/sessiz durumunu döner. Negotiation state'ine dokunmazlar.
	ToggleMicrophone() bool
	ToggleCamera() bool
	ToggleSpeaker() bool

	// Release, tüm cihazları bırakır. İdempotent.
	Release()
}

// sampleMediaDevice, MediaDevice'ın varsayılan implementasyonu.
//
// Track'ler webrtc.TrackLocalStaticSample'dır: negotiation'da geçerli
// m-line üretirler, frame beslemesi ise platforma özgü capture katmanının
// (v4l2, AVFoundation vb.) WriteSample çağrılarıyla yapılır. Capture
// pipeline'ı bu paketin dışındadır — burada sahiplik ve toggle state'i var.
type sampleMediaDevice struct {
	mu         sync.Mutex
	audioTrack *webrtc.TrackLocalStaticSample
	videoTrack *webrtc.TrackLocalStaticSample
	micMuted   bool
	camOff     bool
	speakerOff bool
	released   bool
}

// NewSampleMediaDevice, constructor.
func NewSampleMediaDevice() MediaDevice {
	return &sampleMediaDevice{}
}

func (d *sampleMediaDevice) Acquire(video bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return fmt.Errorf("%w: device already released", ErrDeviceUnavailable)
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "pazar-mic",
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	d.audioTrack = audio

	if video {
		cam, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "pazar-cam",
		)
		if err != nil {
			d.audioTrack = nil
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		d.videoTrack = cam
	}

	return nil
}

func (d *sampleMediaDevice) Tracks() []webrtc.TrackLocal {
	d.mu.Lock()
	defer d.mu.Unlock()

	var tracks []webrtc.TrackLocal
	if d.audioTrack != nil {
		tracks = append(tracks, d.audioTrack)
	}
	if d.videoTrack != nil {
		tracks = append(tracks, d.videoTrack)
	}
	return tracks
}

func (d *sampleMediaDevice) ToggleMicrophone() bool {
	d.mu.Lock()
	d.micMuted = !d.micMuted
	muted := d.micMuted
	d.mu.Unlock()
	log.Printf("[callclient] microphone muted=%v", muted)
	return muted
}

func (d *sampleMediaDevice) ToggleCamera() bool {
	d.mu.Lock()
	d.camOff = !d.camOff
	off := d.camOff
	d.mu.Unlock()
	log.Printf("[callclient] camera off=%v", off)
	return off
}

func (d *sampleMediaDevice) ToggleSpeaker() bool {
	d.mu.Lock()
	d.speakerOff = !d.speakerOff
	off := d.speakerOff
	d.mu.Unlock()
	log.Printf("[callclient] speaker off=%v", off)
	return off
}

func (d *sampleMediaDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return
	}
	d.released = true
	d.audioTrack = nil
	d.videoTrack = nil
}
