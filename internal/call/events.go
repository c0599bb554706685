package call

import "chatline/callcore/internal/media"

// Events is the callback surface exposed to the host UI. All callbacks are
// optional; nil callbacks are skipped. Callbacks are invoked outside the
// controller lock, so they may call back into the controller.
type Events struct {
	OnLocalStream              func(*media.Stream)
	OnRemoteStream             func(*media.Stream)
	OnRemoteVideoStatusChanged func(enabled bool)
	OnRemoteAudioStatusChanged func(enabled bool)
	OnCallConnected            func()
	OnCallDisconnected         func()
	OnCallEnded                func()
	OnError                    func(error)
}

func (e Events) localStream(s *media.Stream) {
	if e.OnLocalStream != nil {
		e.OnLocalStream(s)
	}
}

func (e Events) remoteStream(s *media.Stream) {
	if e.OnRemoteStream != nil {
		e.OnRemoteStream(s)
	}
}

func (e Events) remoteVideoStatus(enabled bool) {
	if e.OnRemoteVideoStatusChanged != nil {
		e.OnRemoteVideoStatusChanged(enabled)
	}
}

func (e Events) remoteAudioStatus(enabled bool) {
	if e.OnRemoteAudioStatusChanged != nil {
		e.OnRemoteAudioStatusChanged(enabled)
	}
}

func (e Events) connected() {
	if e.OnCallConnected != nil {
		e.OnCallConnected()
	}
}

func (e Events) disconnected() {
	if e.OnCallDisconnected != nil {
		e.OnCallDisconnected()
	}
}

func (e Events) ended() {
	if e.OnCallEnded != nil {
		e.OnCallEnded()
	}
}

func (e Events) fail(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}
