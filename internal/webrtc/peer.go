package webrtc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"chatline/callcore/internal/domain"
	"chatline/callcore/internal/media"
)

// DefaultSTUNServers is the fixed public STUN set used when no servers are
// configured. No TURN by default: traversal of symmetric NATs may fail,
// which is a documented limitation of this core.
var DefaultSTUNServers = []string{"stun:stun.l.google.com:19302"}

// Config carries ICE configuration for new peer connections.
type Config struct {
	STUNServers []string
}

// Manager wraps a single Pion PeerConnection for one call session. It is
// created fresh per call and never reused after Close.
type Manager struct {
	pc  *pion.PeerConnection
	log zerolog.Logger

	mu             sync.Mutex
	attached       bool
	remoteTracks   []media.Track
	onCandidate    func(domain.ICECandidate)
	onRemoteStream func(*media.Stream)
	onState        func(domain.PeerState)

	closeOnce sync.Once
}

// NewManager creates a PeerConnection with the default codecs and
// interceptor set.
func NewManager(cfg Config, log zerolog.Logger) (*Manager, error) {
	me := &pion.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(me),
		pion.WithInterceptorRegistry(ir),
	)

	urls := cfg.STUNServers
	if len(urls) == 0 {
		urls = DefaultSTUNServers
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers: []pion.ICEServer{{URLs: urls}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	m := &Manager{pc: pc, log: log.With().Str("component", "webrtc").Logger()}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			m.log.Debug().Msg("ICE gathering complete")
			return
		}
		j := c.ToJSON()
		if isLoopback(j.Candidate) {
			m.log.Debug().Msg("filtering loopback ICE candidate")
			return
		}
		cand := domain.ICECandidate{Candidate: j.Candidate}
		if j.SDPMid != nil {
			cand.SDPMid = *j.SDPMid
		}
		if j.SDPMLineIndex != nil {
			cand.SDPMLineIndex = int(*j.SDPMLineIndex)
		}
		m.mu.Lock()
		fn := m.onCandidate
		m.mu.Unlock()
		if fn != nil {
			fn(cand)
		}
	})

	pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
		m.log.Debug().Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("remote track")
		m.mu.Lock()
		m.remoteTracks = append(m.remoteTracks, &remoteTrack{t: track, receiver: receiver})
		stream := media.NewStream(m.remoteTracks...)
		fn := m.onRemoteStream
		m.mu.Unlock()
		if fn != nil {
			fn(stream)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		m.log.Debug().Str("state", state.String()).Msg("peer connection state")
		m.mu.Lock()
		fn := m.onState
		m.mu.Unlock()
		if fn != nil {
			fn(mapState(state))
		}
	})

	return m, nil
}

// SetOnICECandidate registers the callback for locally discovered candidates.
func (m *Manager) SetOnICECandidate(fn func(domain.ICECandidate)) {
	m.mu.Lock()
	m.onCandidate = fn
	m.mu.Unlock()
}

// SetOnRemoteStream registers the callback invoked whenever the remote
// stream gains a track.
func (m *Manager) SetOnRemoteStream(fn func(*media.Stream)) {
	m.mu.Lock()
	m.onRemoteStream = fn
	m.mu.Unlock()
}

// SetOnStateChange registers the connection state callback.
func (m *Manager) SetOnStateChange(fn func(domain.PeerState)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// AddLocalTracks attaches every local track to the connection. Must be
// called exactly once per session, after media acquisition and before
// creating or answering an offer.
func (m *Manager) AddLocalTracks(stream *media.Stream) error {
	m.mu.Lock()
	if m.attached {
		m.mu.Unlock()
		return errors.New("local tracks already attached")
	}
	m.attached = true
	m.mu.Unlock()

	for _, t := range stream.Tracks() {
		lt, ok := t.(media.LocalTrack)
		if !ok {
			return fmt.Errorf("track %s is not attachable", t.ID())
		}
		if _, err := m.pc.AddTrack(lt.Local()); err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}
	return nil
}

// CreateOffer creates an SDP offer and sets it as the local description.
func (m *Manager) CreateOffer() (domain.SessionDescription, error) {
	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

// CreateAnswer creates an SDP answer and sets it as the local description.
// The remote offer must already be applied.
func (m *Manager) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := m.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := m.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

// SetRemoteDescription applies a remote offer or answer.
func (m *Manager) SetRemoteDescription(d domain.SessionDescription) error {
	desc := pion.SessionDescription{Type: pion.NewSDPType(d.Type), SDP: d.SDP}
	if err := m.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description (%s): %w", d.Type, err)
	}
	return nil
}

// AddICECandidate applies a remote candidate. The remote description must
// already be set; ordering is the buffering layer's responsibility.
func (m *Manager) AddICECandidate(c domain.ICECandidate) error {
	mid := c.SDPMid
	mLine := uint16(c.SDPMLineIndex)
	init := pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mLine,
	}
	if err := m.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// Close shuts down the peer connection. Idempotent.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.pc.Close()
	})
	return err
}

func mapState(s pion.PeerConnectionState) domain.PeerState {
	switch s {
	case pion.PeerConnectionStateNew:
		return domain.PeerNew
	case pion.PeerConnectionStateConnecting:
		return domain.PeerConnecting
	case pion.PeerConnectionStateConnected:
		return domain.PeerConnected
	case pion.PeerConnectionStateDisconnected:
		return domain.PeerDisconnected
	case pion.PeerConnectionStateFailed:
		return domain.PeerFailed
	default:
		return domain.PeerClosed
	}
}

// remoteTrack adapts a Pion TrackRemote to the media.Track interface.
// Consumers read RTP from the underlying track via Remote().
type remoteTrack struct {
	t        *pion.TrackRemote
	receiver *pion.RTPReceiver

	mu    sync.Mutex
	ended bool
}

func (r *remoteTrack) ID() string { return r.t.ID() }

func (r *remoteTrack) Kind() media.Kind {
	if r.t.Kind() == pion.RTPCodecTypeVideo {
		return media.KindVideo
	}
	return media.KindAudio
}

// Remote exposes the underlying track for media consumption.
func (r *remoteTrack) Remote() *pion.TrackRemote { return r.t }

func (r *remoteTrack) Stop() error {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return nil
	}
	r.ended = true
	r.mu.Unlock()
	return r.receiver.Stop()
}

func (r *remoteTrack) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
