package call

import (
	"fmt"
	"testing"

	"chatline/callcore/internal/domain"
)

func TestNegotiation_OfferAppliedAtMostOnce(t *testing.T) {
	var n negotiation

	if _, ok := n.TakeOffer(); ok {
		t.Fatal("expected no offer initially")
	}

	n.BufferOffer(domain.SessionDescription{Type: "offer", SDP: "v=0 first"})
	n.BufferOffer(domain.SessionDescription{Type: "offer", SDP: "v=0 second"})

	sdp, ok := n.TakeOffer()
	if !ok {
		t.Fatal("expected a buffered offer")
	}
	if sdp.SDP != "v=0 second" {
		t.Errorf("expected the newer offer to replace the old one, got %q", sdp.SDP)
	}
	if _, ok := n.TakeOffer(); ok {
		t.Error("expected the offer to be cleared after TakeOffer")
	}
}

func TestNegotiation_CandidatesDrainInArrivalOrder(t *testing.T) {
	var n negotiation
	for i := 0; i < 5; i++ {
		n.HoldCandidate(domain.ICECandidate{Candidate: fmt.Sprintf("candidate:%d", i)})
	}

	drained := n.DrainCandidates()
	if len(drained) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(drained))
	}
	for i, c := range drained {
		if want := fmt.Sprintf("candidate:%d", i); c.Candidate != want {
			t.Errorf("candidate %d: got %q, want %q", i, c.Candidate, want)
		}
	}
	if len(n.DrainCandidates()) != 0 {
		t.Error("expected the buffer to be empty after draining")
	}
}

func TestNegotiation_PhaseTransitions(t *testing.T) {
	var n negotiation
	if n.Negotiated() {
		t.Fatal("fresh negotiation must not be negotiated")
	}
	n.MarkNegotiated()
	if !n.Negotiated() {
		t.Fatal("expected negotiated after MarkNegotiated")
	}
	n.Reset()
	if n.Negotiated() || len(n.DrainCandidates()) != 0 {
		t.Error("expected Reset to discard all state")
	}
}
