package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chatline/callcore/internal/domain"
	"chatline/callcore/internal/media"
)

// State is the lifecycle state of the controller's session.
type State string

const (
	StateIdle            State = "IDLE"
	StateOutgoingRinging State = "OUTGOING_RINGING"
	StateIncomingRinging State = "INCOMING_RINGING"
	StateActive          State = "ACTIVE"
	StateEnded           State = "ENDED"
)

// Peer is the per-session peer connection owned by the controller. The
// production implementation is webrtc.Manager; tests substitute fakes.
type Peer interface {
	SetOnICECandidate(func(domain.ICECandidate))
	SetOnRemoteStream(func(*media.Stream))
	SetOnStateChange(func(domain.PeerState))
	AddLocalTracks(*media.Stream) error
	CreateOffer() (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetRemoteDescription(domain.SessionDescription) error
	AddICECandidate(domain.ICECandidate) error
	Close() error
}

// PeerFactory creates a fresh peer connection for one session.
type PeerFactory func() (Peer, error)

// Config wires the controller's collaborators.
type Config struct {
	LocalUserID string
	Signaling   domain.SignalingChannel
	Directory   domain.CallDirectory
	Source      media.Source
	Ladder      []media.Profile // defaults to media.DefaultLadder
	NewPeer     PeerFactory
	Events      Events
	Logger      zerolog.Logger
}

// session is the live negotiation state for one call. Exactly one session
// is active at a time; it is destroyed on CALL_END, user termination or
// unrecoverable error, releasing every owned resource.
type session struct {
	callID       string
	remoteUserID string
	role         domain.Role
	state        State

	peer          Peer
	local         *media.Stream
	remote        *media.Stream
	mediaAttached bool

	neg          negotiation
	pendingLocal []domain.ICECandidate
	accepting    bool

	remoteVideoEnabled bool
	remoteAudioEnabled bool

	cleaned bool
}

// Controller coordinates outgoing call initiation, incoming call
// acceptance/rejection, active-call signaling and termination. Operations
// are serialized by a mutex; slow suspensions (media acquisition, record
// service calls) run unlocked with a liveness re-check afterwards, so a
// cancellation landing mid-acquire releases the late stream instead of
// attaching it.
type Controller struct {
	localUserID string
	signaling   domain.SignalingChannel
	directory   domain.CallDirectory
	source      media.Source
	ladder      []media.Profile
	newPeer     PeerFactory
	events      Events
	log         zerolog.Logger

	mu   sync.Mutex
	sess *session
}

// New builds a Controller from the config.
func New(cfg Config) *Controller {
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = media.DefaultLadder
	}
	return &Controller{
		localUserID: cfg.LocalUserID,
		signaling:   cfg.Signaling,
		directory:   cfg.Directory,
		source:      cfg.Source,
		ladder:      ladder,
		newPeer:     cfg.NewPeer,
		events:      cfg.Events,
		log:         cfg.Logger.With().Str("component", "call").Logger(),
	}
}

// SetSignaling installs the signaling channel after construction. The
// signaling client needs the controller as its handler, so one of the two
// has to be wired late.
func (c *Controller) SetSignaling(ch domain.SignalingChannel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signaling = ch
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return StateIdle
	}
	return c.sess.state
}

// CallID returns the active call's identifier, or "" when idle.
func (c *Controller) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.callID
}

// InitiateCall starts an outgoing call: it creates the call record, runs a
// pre-flight media probe (rolling the record back if the probe fails),
// acquires media for real, attaches tracks, and sends the offer. A media
// failure is fatal to the attempt and leaves no dangling record.
func (c *Controller) InitiateCall(ctx context.Context, remoteUserID string) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return domain.ErrCallInProgress
	}
	sess := &session{
		remoteUserID:       remoteUserID,
		role:               domain.RoleCaller,
		state:              StateOutgoingRinging,
		remoteVideoEnabled: true,
		remoteAudioEnabled: true,
	}
	c.sess = sess
	c.mu.Unlock()

	record, err := c.directory.CreateCall(ctx, c.localUserID, remoteUserID)
	if err != nil {
		c.discard(sess)
		return fmt.Errorf("create call record: %w", err)
	}

	c.mu.Lock()
	if sess.cleaned {
		c.mu.Unlock()
		_ = c.directory.EndCall(ctx, record.ID)
		return domain.ErrNoSession
	}
	sess.callID = record.ID
	c.mu.Unlock()

	// Pre-flight probe: fail fast on permission/device errors before the
	// remote side ever rings, and roll back the record if it fails.
	probe, err := media.Acquire(c.source, c.ladder, c.log)
	if err != nil {
		c.log.Warn().Err(err).Msg("pre-flight media probe failed, rolling back call record")
		c.rollbackRecord(ctx, record.ID)
		c.discard(sess)
		return err
	}
	probe.Stop()

	local, err := media.Acquire(c.source, c.ladder, c.log)
	if err != nil {
		c.rollbackRecord(ctx, record.ID)
		c.discard(sess)
		return err
	}

	c.mu.Lock()
	if sess.cleaned {
		// Cancelled while acquiring: release the late stream, never attach it.
		c.mu.Unlock()
		local.Stop()
		return domain.ErrNoSession
	}
	peer, err := c.newPeer()
	if err != nil {
		c.cleanupLocked(sess)
		c.mu.Unlock()
		local.Stop()
		c.rollbackRecord(ctx, record.ID)
		return fmt.Errorf("create peer connection: %w", err)
	}
	sess.peer = peer
	c.wirePeerLocked(sess)
	sess.local = local
	if err := peer.AddLocalTracks(local); err != nil {
		c.cleanupLocked(sess)
		c.mu.Unlock()
		c.rollbackRecord(ctx, record.ID)
		c.events.ended()
		return fmt.Errorf("attach local tracks: %w", err)
	}
	sess.mediaAttached = true
	callID, from, to := sess.callID, c.localUserID, sess.remoteUserID
	c.mu.Unlock()

	c.events.localStream(local)

	offer, err := peer.CreateOffer()
	if err != nil {
		c.mu.Lock()
		did := c.cleanupLocked(sess)
		c.mu.Unlock()
		c.rollbackRecord(ctx, callID)
		if did {
			c.events.ended()
		}
		return fmt.Errorf("create offer: %w", err)
	}
	c.send(domain.NewSDPEnvelope(domain.SignalOffer, callID, from, to, offer))
	return nil
}

// AcceptCall accepts the incoming call: acquires media, attaches tracks,
// applies the buffered offer if one is parked, sends the answer and an
// explicit CALL_ACCEPT, then flushes buffered remote candidates in order.
func (c *Controller) AcceptCall(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.role != domain.RoleCallee || sess.state != StateIncomingRinging {
		c.mu.Unlock()
		return domain.ErrNoSession
	}
	// A second accept (double-click, racing UI) must not re-acquire the
	// devices or re-attach tracks over a live negotiation.
	if sess.accepting || sess.mediaAttached {
		c.mu.Unlock()
		return domain.ErrCallInProgress
	}
	sess.accepting = true
	c.mu.Unlock()

	local, err := media.Acquire(c.source, c.ladder, c.log)
	if err != nil {
		c.mu.Lock()
		did := c.cleanupLocked(sess)
		c.mu.Unlock()
		if did {
			c.events.ended()
		}
		return err
	}

	var outbound []domain.SignalEnvelope
	c.mu.Lock()
	if sess.cleaned {
		// The caller hung up (or we were rejected) while acquiring.
		c.mu.Unlock()
		local.Stop()
		return domain.ErrNoSession
	}
	sess.local = local
	if err := sess.peer.AddLocalTracks(local); err != nil {
		c.cleanupLocked(sess)
		c.mu.Unlock()
		c.events.ended()
		return fmt.Errorf("attach local tracks: %w", err)
	}
	sess.mediaAttached = true
	callID, from, to := sess.callID, c.localUserID, sess.remoteUserID

	if sdp, ok := sess.neg.TakeOffer(); ok {
		answer, err := c.applyOfferLocked(sess, sdp)
		if err != nil {
			c.cleanupLocked(sess)
			c.mu.Unlock()
			c.events.ended()
			return err
		}
		outbound = append(outbound, domain.NewSDPEnvelope(domain.SignalAnswer, callID, from, to, answer))
	}
	outbound = append(outbound, domain.NewControlEnvelope(domain.SignalAccept, callID, from, to))
	outbound = append(outbound, c.flushLocalCandidatesLocked(sess)...)
	c.mu.Unlock()

	c.events.localStream(local)
	for _, env := range outbound {
		c.send(env)
	}
	return nil
}

// RejectCall declines the incoming call without ever touching media.
func (c *Controller) RejectCall(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.role != domain.RoleCallee {
		c.mu.Unlock()
		return domain.ErrNoSession
	}
	env := domain.NewControlEnvelope(domain.SignalReject, sess.callID, c.localUserID, sess.remoteUserID)
	did := c.cleanupLocked(sess)
	c.mu.Unlock()

	c.send(env)
	if did {
		c.events.ended()
	}
	return nil
}

// EndCall terminates the active call and releases every owned resource.
// Idempotent: a second call (e.g. racing a remote CALL_END) is a no-op.
func (c *Controller) EndCall(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.mu.Unlock()
		return nil
	}
	env := domain.NewControlEnvelope(domain.SignalEnd, sess.callID, c.localUserID, sess.remoteUserID)
	did := c.cleanupLocked(sess)
	c.mu.Unlock()

	c.send(env)
	if did {
		c.events.ended()
	}
	return nil
}

// HandleEnvelope dispatches one inbound signaling envelope. Malformed or
// out-of-sequence envelopes are logged and dropped, never fatal.
func (c *Controller) HandleEnvelope(env domain.SignalEnvelope) {
	var outbound []domain.SignalEnvelope
	var after []func()

	c.mu.Lock()
	sess := c.sess

	switch env.Type {
	case domain.SignalOffer:
		sdp, err := env.SDP()
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed offer")
			break
		}
		if sess == nil {
			// First contact for this call: create a bare connection so ICE
			// gathering for the answer can eventually proceed, but park the
			// offer until the user accepts and local media exists. Applying
			// it earlier would answer with no local tracks.
			peer, err := c.newPeer()
			if err != nil {
				c.log.Error().Err(err).Msg("create peer connection for incoming call")
				after = append(after, func() { c.events.fail(err) })
				break
			}
			sess = &session{
				callID:             env.CallID,
				remoteUserID:       env.FromUserID,
				role:               domain.RoleCallee,
				state:              StateIncomingRinging,
				remoteVideoEnabled: true,
				remoteAudioEnabled: true,
				peer:               peer,
			}
			sess.neg.BufferOffer(sdp)
			c.sess = sess
			c.wirePeerLocked(sess)
			break
		}
		if sess.callID != env.CallID {
			c.log.Warn().Str("callId", env.CallID).Msg("dropping offer for unknown call")
			break
		}
		if !sess.mediaAttached {
			sess.neg.BufferOffer(sdp)
			break
		}
		// Local media already exists: re-offer, treated as renegotiation.
		answer, err := c.applyOfferLocked(sess, sdp)
		if err != nil {
			c.log.Error().Err(err).Msg("renegotiation failed")
			after = append(after, func() { c.events.fail(err) })
			break
		}
		outbound = append(outbound, domain.NewSDPEnvelope(domain.SignalAnswer, sess.callID, c.localUserID, sess.remoteUserID, answer))

	case domain.SignalAnswer:
		if sess == nil || sess.callID != env.CallID {
			c.log.Warn().Str("callId", env.CallID).Msg("dropping answer for unknown call")
			break
		}
		sdp, err := env.SDP()
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed answer")
			break
		}
		if err := sess.peer.SetRemoteDescription(sdp); err != nil {
			c.log.Error().Err(err).Msg("apply answer")
			after = append(after, func() { c.events.fail(err) })
			break
		}
		sess.neg.MarkNegotiated()
		c.applyBufferedCandidatesLocked(sess)

	case domain.SignalCandidate:
		if sess == nil || sess.callID != env.CallID {
			c.log.Warn().Str("callId", env.CallID).Msg("dropping candidate for unknown call")
			break
		}
		cand, err := env.Candidate()
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed candidate")
			break
		}
		if sess.neg.Negotiated() {
			if err := sess.peer.AddICECandidate(cand); err != nil {
				c.log.Warn().Err(err).Msg("apply remote candidate")
			}
		} else {
			sess.neg.HoldCandidate(cand)
		}

	case domain.SignalAccept:
		if sess == nil || sess.callID != env.CallID {
			c.log.Warn().Str("callId", env.CallID).Msg("dropping accept for unknown call")
			break
		}
		if sess.role == domain.RoleCaller && sess.state == StateOutgoingRinging {
			sess.state = StateActive
		}

	case domain.SignalReject, domain.SignalEnd, domain.SignalTimeout:
		if sess == nil || sess.callID != env.CallID {
			break
		}
		if c.cleanupLocked(sess) {
			after = append(after, c.events.ended)
		}

	default:
		c.log.Warn().Str("type", string(env.Type)).Msg("dropping envelope of unknown type")
	}
	c.mu.Unlock()

	for _, e := range outbound {
		c.send(e)
	}
	for _, f := range after {
		f()
	}
}

// HandleCallStatus applies a call-record status change from the record
// service channel. These transitions are authoritative, independent of and
// in addition to the raw SDP signaling.
func (c *Controller) HandleCallStatus(record domain.CallRecord) {
	var after []func()

	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.callID != record.ID {
		c.mu.Unlock()
		return
	}
	switch record.Status {
	case domain.CallAccepted:
		if sess.state == StateOutgoingRinging || sess.state == StateIncomingRinging {
			sess.state = StateActive
		}
	case domain.CallRejected, domain.CallEnded, domain.CallTimeout:
		if c.cleanupLocked(sess) {
			after = append(after, c.events.ended)
		}
	}
	c.mu.Unlock()

	for _, f := range after {
		f()
	}
}

// applyOfferLocked applies a remote offer, creates the answer and flushes
// buffered remote candidates in arrival order. Caller holds the lock.
func (c *Controller) applyOfferLocked(sess *session, sdp domain.SessionDescription) (domain.SessionDescription, error) {
	if err := sess.peer.SetRemoteDescription(sdp); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("apply offer: %w", err)
	}
	sess.neg.MarkNegotiated()
	answer, err := sess.peer.CreateAnswer()
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	c.applyBufferedCandidatesLocked(sess)
	return answer, nil
}

func (c *Controller) applyBufferedCandidatesLocked(sess *session) {
	for _, cand := range sess.neg.DrainCandidates() {
		if err := sess.peer.AddICECandidate(cand); err != nil {
			c.log.Warn().Err(err).Msg("apply buffered candidate")
		}
	}
}

// flushLocalCandidatesLocked turns candidates withheld before media attach
// into outbound envelopes. Caller holds the lock.
func (c *Controller) flushLocalCandidatesLocked(sess *session) []domain.SignalEnvelope {
	envs := make([]domain.SignalEnvelope, 0, len(sess.pendingLocal))
	for _, cand := range sess.pendingLocal {
		envs = append(envs, domain.NewCandidateEnvelope(sess.callID, c.localUserID, sess.remoteUserID, cand))
	}
	sess.pendingLocal = nil
	return envs
}

// wirePeerLocked connects the peer's event surface to this session.
func (c *Controller) wirePeerLocked(sess *session) {
	sess.peer.SetOnICECandidate(func(cand domain.ICECandidate) {
		c.handleLocalCandidate(sess, cand)
	})
	sess.peer.SetOnRemoteStream(func(s *media.Stream) {
		c.handleRemoteStream(sess, s)
	})
	sess.peer.SetOnStateChange(func(st domain.PeerState) {
		c.handlePeerState(sess, st)
	})
}

// handleLocalCandidate forwards a locally discovered candidate, withholding
// it while local media is not yet attached: sending earlier would reveal
// network topology to a peer that has not consented to the call.
func (c *Controller) handleLocalCandidate(sess *session, cand domain.ICECandidate) {
	c.mu.Lock()
	if sess.cleaned {
		c.mu.Unlock()
		return
	}
	if !sess.mediaAttached {
		sess.pendingLocal = append(sess.pendingLocal, cand)
		c.mu.Unlock()
		return
	}
	env := domain.NewCandidateEnvelope(sess.callID, c.localUserID, sess.remoteUserID, cand)
	c.mu.Unlock()
	c.send(env)
}

func (c *Controller) handleRemoteStream(sess *session, s *media.Stream) {
	c.mu.Lock()
	if sess.cleaned {
		c.mu.Unlock()
		return
	}
	sess.remote = s

	// An empty stream resets the flags to their defaults instead of leaving
	// them stale from the last track set.
	video, audio := true, true
	if len(s.Tracks()) > 0 {
		video = s.HasVideo()
		audio = s.HasAudio()
	}
	videoChanged := video != sess.remoteVideoEnabled
	audioChanged := audio != sess.remoteAudioEnabled
	sess.remoteVideoEnabled = video
	sess.remoteAudioEnabled = audio
	c.mu.Unlock()

	c.events.remoteStream(s)
	if videoChanged {
		c.events.remoteVideoStatus(video)
	}
	if audioChanged {
		c.events.remoteAudioStatus(audio)
	}
}

// handlePeerState reacts to connection-state transitions. DISCONNECTED can
// be transient, so it is surfaced but never tears the session down here.
func (c *Controller) handlePeerState(sess *session, st domain.PeerState) {
	c.mu.Lock()
	if sess.cleaned {
		c.mu.Unlock()
		return
	}
	switch st {
	case domain.PeerConnected:
		sess.state = StateActive
		c.mu.Unlock()
		c.events.connected()
	case domain.PeerDisconnected:
		c.mu.Unlock()
		c.events.disconnected()
	case domain.PeerFailed:
		c.mu.Unlock()
		c.events.fail(errors.New("peer connection failed"))
	default:
		c.mu.Unlock()
	}
}

// cleanupLocked releases everything the session owns: local tracks stopped,
// peer connection closed, buffers discarded. Returns false if the session
// was already cleaned. Caller holds the lock.
func (c *Controller) cleanupLocked(sess *session) bool {
	if sess == nil || sess.cleaned {
		return false
	}
	sess.cleaned = true
	sess.state = StateEnded
	if sess.local != nil {
		sess.local.Stop()
	}
	if sess.peer != nil {
		if err := sess.peer.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close peer connection")
		}
	}
	sess.neg.Reset()
	sess.pendingLocal = nil
	sess.local = nil
	sess.remote = nil
	if c.sess == sess {
		c.sess = nil
	}
	return true
}

// rollbackRecord ends a call record whose setup failed before an offer ever
// reached the remote side, so no stale INITIATED record lingers.
func (c *Controller) rollbackRecord(ctx context.Context, callID string) {
	if err := c.directory.EndCall(ctx, callID); err != nil {
		c.log.Error().Err(err).Str("callId", callID).Msg("call record rollback failed")
	}
}

// discard drops a session that never got far enough to own resources.
func (c *Controller) discard(sess *session) {
	c.mu.Lock()
	c.cleanupLocked(sess)
	c.mu.Unlock()
}

// send transmits one envelope. Failures are logged and surfaced best-effort;
// a blind per-envelope retry would risk double negotiation, so the call is
// left to stall and be ended by the user or the external timeout.
func (c *Controller) send(env domain.SignalEnvelope) {
	if err := c.signaling.Send(context.Background(), env); err != nil {
		c.log.Error().Err(err).Str("type", string(env.Type)).Str("callId", env.CallID).Msg("signaling send failed")
		c.events.fail(err)
	}
}
