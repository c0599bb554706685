package domain

import "context"

// SignalingChannel delivers signaling envelopes to the remote peer.
type SignalingChannel interface {
	Send(ctx context.Context, env SignalEnvelope) error
}

// CallDirectory is the external call record service. CreateCall is invoked
// at call start, EndCall at termination (and to roll back a record whose
// media probe failed).
type CallDirectory interface {
	CreateCall(ctx context.Context, callerID, calleeID string) (*CallRecord, error)
	EndCall(ctx context.Context, callID string) error
}

// Handler receives inbound signaling traffic. Implemented by the call
// lifecycle controller, consumed by the signaling transport client.
type Handler interface {
	HandleEnvelope(env SignalEnvelope)
	HandleCallStatus(record CallRecord)
}
