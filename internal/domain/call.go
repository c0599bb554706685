package domain

import "time"

// Role says which side of the negotiation this endpoint plays. The caller
// creates the offer, the callee answers it.
type Role string

const (
	RoleCaller Role = "CALLER"
	RoleCallee Role = "CALLEE"
)

// CallStatus is the lifecycle state of a call record as reported by the
// call record service. Keep values stable, they are part of the wire API.
type CallStatus string

const (
	CallInitiated CallStatus = "INITIATED"
	CallRinging   CallStatus = "RINGING"
	CallAccepted  CallStatus = "ACCEPTED"
	CallRejected  CallStatus = "REJECTED"
	CallEnded     CallStatus = "ENDED"
	CallTimeout   CallStatus = "TIMEOUT"
)

// Terminal reports whether the status ends the call.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallRejected, CallEnded, CallTimeout:
		return true
	}
	return false
}

// CallRecord is the persisted call metadata owned by the external call
// record service, referenced here only by ID.
type CallRecord struct {
	ID        string     `json:"id"`
	CallerID  string     `json:"callerId"`
	CalleeID  string     `json:"calleeId"`
	Status    CallStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// PeerState is the transport-level connection state of a peer connection.
type PeerState string

const (
	PeerNew          PeerState = "new"
	PeerConnecting   PeerState = "connecting"
	PeerConnected    PeerState = "connected"
	PeerDisconnected PeerState = "disconnected"
	PeerFailed       PeerState = "failed"
	PeerClosed       PeerState = "closed"
)
