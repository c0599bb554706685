package media

import pion "github.com/pion/webrtc/v4"

// Kind distinguishes audio from video tracks.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one live audio or video track. Stop releases the underlying
// device or receiver; after Stop, Ended reports true.
type Track interface {
	ID() string
	Kind() Kind
	Stop() error
	Ended() bool
}

// LocalTrack is a Track backed by local capture hardware that can be
// attached to a peer connection.
type LocalTrack interface {
	Track
	Local() pion.TrackLocal
}

// Stream is an ordered set of live tracks owned by one call session.
type Stream struct {
	tracks []Track
}

// NewStream builds a stream over the given tracks.
func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns the stream's tracks in order.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	return s.tracks
}

// HasVideo reports whether the stream carries at least one live video track.
func (s *Stream) HasVideo() bool {
	return s.has(KindVideo)
}

// HasAudio reports whether the stream carries at least one live audio track.
func (s *Stream) HasAudio() bool {
	return s.has(KindAudio)
}

func (s *Stream) has(kind Kind) bool {
	if s == nil {
		return false
	}
	for _, t := range s.tracks {
		if t.Kind() == kind && !t.Ended() {
			return true
		}
	}
	return false
}

// Stop stops every track, releasing the hardware. Safe to call more than
// once and on a nil stream.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.tracks {
		if !t.Ended() {
			_ = t.Stop()
		}
	}
}
