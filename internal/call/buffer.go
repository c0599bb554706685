package call

import "chatline/callcore/internal/domain"

// negotiationPhase tracks how far the remote description has progressed.
type negotiationPhase int

const (
	// phaseAwaitingOffer: no remote description seen yet.
	phaseAwaitingOffer negotiationPhase = iota
	// phaseOfferBuffered: a remote offer arrived before local media was
	// ready and is parked until the user accepts.
	phaseOfferBuffered
	// phaseNegotiated: a remote description has been applied; candidates
	// can now be applied directly.
	phaseNegotiated
)

// negotiation absorbs signaling that arrives before the local side is ready
// to process it. WebRTC requires a remote description before remote ICE
// candidates can be applied, but the transport gives no ordering guarantee
// relative to the user's accept action, so offers and candidates are parked
// here and flushed in arrival order once the precondition holds.
type negotiation struct {
	phase         negotiationPhase
	bufferedOffer domain.SessionDescription
	pending       []domain.ICECandidate
}

// BufferOffer parks a remote offer. At most one offer is held; a newer
// offer replaces the old one.
func (n *negotiation) BufferOffer(sdp domain.SessionDescription) {
	n.bufferedOffer = sdp
	n.phase = phaseOfferBuffered
}

// TakeOffer returns the buffered offer, if any, and clears it. The clear is
// unconditional so the offer can be applied at most once.
func (n *negotiation) TakeOffer() (domain.SessionDescription, bool) {
	if n.phase != phaseOfferBuffered {
		return domain.SessionDescription{}, false
	}
	sdp := n.bufferedOffer
	n.bufferedOffer = domain.SessionDescription{}
	n.phase = phaseAwaitingOffer
	return sdp, true
}

// MarkNegotiated records that a remote description has been applied.
func (n *negotiation) MarkNegotiated() {
	n.phase = phaseNegotiated
}

// Negotiated reports whether remote candidates can be applied directly.
func (n *negotiation) Negotiated() bool {
	return n.phase == phaseNegotiated
}

// HoldCandidate appends a remote candidate to the FIFO buffer.
func (n *negotiation) HoldCandidate(c domain.ICECandidate) {
	n.pending = append(n.pending, c)
}

// DrainCandidates returns the buffered candidates in arrival order and
// empties the buffer. Candidates are never reordered or deduplicated.
func (n *negotiation) DrainCandidates() []domain.ICECandidate {
	pending := n.pending
	n.pending = nil
	return pending
}

// Reset discards all buffered state.
func (n *negotiation) Reset() {
	*n = negotiation{}
}
