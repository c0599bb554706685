package domain

import (
	"encoding/json"
	"testing"
)

func TestEnvelope_SDPPayload(t *testing.T) {
	env := NewSDPEnvelope(SignalOffer, "call-1", "alice", "bob",
		SessionDescription{Type: "offer", SDP: "v=0 test"})

	sdp, err := env.SDP()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sdp.Type != "offer" || sdp.SDP != "v=0 test" {
		t.Errorf("unexpected description: %+v", sdp)
	}
}

func TestEnvelope_CandidatePayload(t *testing.T) {
	env := NewCandidateEnvelope("call-1", "alice", "bob", ICECandidate{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
		SDPMid:        "0",
		SDPMLineIndex: 1,
	})

	c, err := env.Candidate()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.SDPMid != "0" || c.SDPMLineIndex != 1 {
		t.Errorf("candidate metadata lost: %+v", c)
	}
}

func TestEnvelope_MalformedPayload(t *testing.T) {
	env := SignalEnvelope{Type: SignalOffer, Data: json.RawMessage(`{"type":`)}
	if _, err := env.SDP(); err == nil {
		t.Error("expected an error for a truncated SDP payload")
	}
	if _, err := env.Candidate(); err == nil {
		t.Error("expected an error for a truncated candidate payload")
	}
}

func TestControlEnvelope_CarriesNoData(t *testing.T) {
	env := NewControlEnvelope(SignalEnd, "call-1", "alice", "bob")
	if env.Data != nil {
		t.Errorf("expected no payload on a control envelope, got %s", env.Data)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded SignalEnvelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != SignalEnd || decoded.CallID != "call-1" {
		t.Errorf("unexpected envelope: %+v", decoded)
	}
}
