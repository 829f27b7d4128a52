package callclient

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// PeerLink, WebRTC peer bağlantısını soyutlar.
//
// Controller'ın state machine'i bu interface üzerinden çalışır — testler
// gerçek ICE/DTLS kurmadan fake PeerLink ile transition'ları doğrular.
//
// Bir PeerLink asla yeniden kullanılmaz: renegotiation gerektiğinde mevcut
// link kapatılıp yenisi oluşturulur. Yarım kalmış negotiation state'i
// mutate etmekten her zaman daha güvenlidir.
type PeerLink interface {
	// CreateOffer, local description'ı oluşturup SDP metnini döner (caller tarafı).
	CreateOffer() (string, error)

	// HandleOffer, karşı tarafın offer'ını işler ve answer SDP'sini döner (receiver tarafı).
	HandleOffer(sdp string) (string, error)

	// HandleAnswer, karşı tarafın answer'ını remote description olarak set eder.
	HandleAnswer(sdp string) error

	// AddCandidate, serialize edilmiş bir ICE candidate'i bağlantıya ekler.
	AddCandidate(candidate string) error

	// OnCandidate, local ICE candidate üretildiğinde çağrılacak callback'i kaydeder.
	// Candidate, JSON-serialize edilmiş webrtc.ICECandidateInit'tir.
	OnCandidate(fn func(candidate string))

	// OnConnected, transport bağlandığında bir kez çağrılacak callback'i kaydeder.
	OnConnected(fn func())

	// Close, bağlantıyı kapatır. İdempotent.
	Close() error
}

// PeerLinkFactory, Controller'a inject edilen link constructor'ı.
// Production'da NewPionLink, testlerde fake döner.
type PeerLinkFactory func(media MediaDevice, video bool) (PeerLink, error)

// pionLink, PeerLink'in pion/webrtc implementasyonu.
type pionLink struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	onCandidate func(string)
	onConnected func()
	connected   bool
	closed      bool
}

// NewPionLink, STUN destekli bir peer bağlantısı kurar ve MediaDevice'ın
// track'lerini ekler. video=false ise yalnızca ses track'i bağlanır.
func NewPionLink(media MediaDevice, video bool) (PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	l := &pionLink{pc: pc}

	for _, track := range media.Tracks() {
		if track == nil {
			continue
		}
		if !video && track.Kind() == webrtc.RTPCodecTypeVideo {
			continue
		}
		if _, err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
		}
	}

	// Karşı taraftan medya alabilmek için recvonly transceiver'lar —
	// track eklenmemiş olsa bile offer/answer geçerli m-line üretir.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("[callclient] add audio transceiver: %v", err)
	}
	if video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			log.Printf("[callclient] add video transceiver: %v", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering bitti
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Printf("[callclient] failed to marshal ice candidate: %v", err)
			return
		}

		l.mu.Lock()
		fn := l.onCandidate
		l.mu.Unlock()
		if fn != nil {
			fn(string(data))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[callclient] peer connection state: %s", state)
		if state != webrtc.PeerConnectionStateConnected {
			return
		}

		l.mu.Lock()
		fn := l.onConnected
		already := l.connected
		l.connected = true
		l.mu.Unlock()
		if fn != nil && !already {
			fn()
		}
	})

	return l, nil
}

func (l *pionLink) CreateOffer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

func (l *pionLink) HandleOffer(sdp string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return "", fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

func (l *pionLink) HandleAnswer(sdp string) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (l *pionLink) AddCandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("bad candidate payload: %w", err)
	}
	if err := l.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (l *pionLink) OnCandidate(fn func(string)) {
	l.mu.Lock()
	l.onCandidate = fn
	l.mu.Unlock()
}

func (l *pionLink) OnConnected(fn func()) {
	l.mu.Lock()
	l.onConnected = fn
	l.mu.Unlock()
}

func (l *pionLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	return l.pc.Close()
}
