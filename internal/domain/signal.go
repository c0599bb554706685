package domain

import (
	"encoding/json"
	"fmt"
)

// SessionDescription is the JSON structure for SDP offer/answer payloads.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is the JSON structure for ICE candidate payloads.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// SignalType identifies the kind of signaling envelope.
type SignalType string

const (
	SignalOffer     SignalType = "CALL_OFFER"
	SignalAnswer    SignalType = "CALL_ANSWER"
	SignalCandidate SignalType = "ICE_CANDIDATE"
	SignalAccept    SignalType = "CALL_ACCEPT"
	SignalReject    SignalType = "CALL_REJECT"
	SignalEnd       SignalType = "CALL_END"
	SignalTimeout   SignalType = "CALL_TIMEOUT"
)

// SignalEnvelope is the wire unit exchanged over the signaling transport.
// Data carries a SessionDescription for CALL_OFFER/CALL_ANSWER, an
// ICECandidate for ICE_CANDIDATE, and is absent for the control types.
type SignalEnvelope struct {
	CallID     string          `json:"callId"`
	FromUserID string          `json:"fromUserId"`
	ToUserID   string          `json:"toUserId"`
	Type       SignalType      `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewSDPEnvelope builds an offer or answer envelope.
func NewSDPEnvelope(t SignalType, callID, from, to string, sdp SessionDescription) SignalEnvelope {
	data, _ := json.Marshal(sdp)
	return SignalEnvelope{CallID: callID, FromUserID: from, ToUserID: to, Type: t, Data: data}
}

// NewCandidateEnvelope builds an ICE_CANDIDATE envelope.
func NewCandidateEnvelope(callID, from, to string, c ICECandidate) SignalEnvelope {
	data, _ := json.Marshal(c)
	return SignalEnvelope{CallID: callID, FromUserID: from, ToUserID: to, Type: SignalCandidate, Data: data}
}

// NewControlEnvelope builds a data-less envelope (accept/reject/end/timeout).
func NewControlEnvelope(t SignalType, callID, from, to string) SignalEnvelope {
	return SignalEnvelope{CallID: callID, FromUserID: from, ToUserID: to, Type: t}
}

// SDP decodes the envelope payload as a SessionDescription.
func (e SignalEnvelope) SDP() (SessionDescription, error) {
	var sdp SessionDescription
	if err := json.Unmarshal(e.Data, &sdp); err != nil {
		return SessionDescription{}, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return sdp, nil
}

// Candidate decodes the envelope payload as an ICECandidate.
func (e SignalEnvelope) Candidate() (ICECandidate, error) {
	var c ICECandidate
	if err := json.Unmarshal(e.Data, &c); err != nil {
		return ICECandidate{}, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return c, nil
}
