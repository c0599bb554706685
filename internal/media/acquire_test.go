package media

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"chatline/callcore/internal/domain"
)

// fakeTrack records Stop calls for verification.
type fakeTrack struct {
	id    string
	kind  Kind
	stops int
	ended bool
}

func (f *fakeTrack) ID() string  { return f.id }
func (f *fakeTrack) Kind() Kind  { return f.kind }
func (f *fakeTrack) Ended() bool { return f.ended }
func (f *fakeTrack) Stop() error {
	f.stops++
	f.ended = true
	return nil
}

// fakeSource plays back a scripted sequence of GetUserMedia results.
type fakeSource struct {
	results []fakeResult
	calls   []Profile
}

type fakeResult struct {
	stream *Stream
	err    error
}

func (f *fakeSource) GetUserMedia(p Profile) (*Stream, error) {
	f.calls = append(f.calls, p)
	if len(f.results) == 0 {
		return nil, errors.New("unexpected call")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.stream, r.err
}

func avStream() (*Stream, *fakeTrack, *fakeTrack) {
	v := &fakeTrack{id: "v", kind: KindVideo}
	a := &fakeTrack{id: "a", kind: KindAudio}
	return NewStream(v, a), v, a
}

func TestAcquire_FallsBackThroughLadder(t *testing.T) {
	good, _, _ := avStream()
	src := &fakeSource{results: []fakeResult{
		{err: errors.New("NotReadableError: could not start video source")},
		{err: errors.New("v4l2: device or resource busy")},
		{stream: good},
	}}

	stream, err := Acquire(src, DefaultLadder, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stream != good {
		t.Fatal("expected the tier-3 stream to be returned")
	}
	if len(src.calls) != 3 {
		t.Fatalf("expected 3 tiers attempted, got %d", len(src.calls))
	}
	if src.calls[2].Label != "best-effort" {
		t.Errorf("expected third attempt at best-effort tier, got %q", src.calls[2].Label)
	}
}

func TestAcquire_StopsPartialStreamWithoutVideo(t *testing.T) {
	audioOnly := &fakeTrack{id: "a1", kind: KindAudio}
	partial := NewStream(audioOnly)
	good, _, _ := avStream()
	src := &fakeSource{results: []fakeResult{
		{stream: partial}, // video requested, none delivered: soft failure
		{stream: good},
	}}

	stream, err := Acquire(src, DefaultLadder, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stream != good {
		t.Fatal("expected the tier-2 stream to be returned")
	}
	if audioOnly.stops != 1 || !audioOnly.ended {
		t.Errorf("expected the abandoned tier-1 track to be stopped exactly once, got stops=%d ended=%v", audioOnly.stops, audioOnly.ended)
	}
}

func TestAcquire_PermissionDeniedShortCircuits(t *testing.T) {
	src := &fakeSource{results: []fakeResult{
		{err: errors.New("NotAllowedError: permission denied by user")},
	}}

	_, err := Acquire(src, DefaultLadder, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error")
	}
	var me *domain.MediaError
	if !errors.As(err, &me) {
		t.Fatalf("expected *domain.MediaError, got %T", err)
	}
	if me.Code != domain.MediaPermissionDenied {
		t.Errorf("expected PERMISSION_DENIED, got %s", me.Code)
	}
	if len(src.calls) != 1 {
		t.Errorf("expected no further tiers after permission denial, got %d attempts", len(src.calls))
	}
	if me.Hint() == "" || me.Hint() == "could not access camera or microphone" {
		t.Errorf("expected a specific remediation hint, got %q", me.Hint())
	}
}

func TestAcquire_AllTiersFailReturnsLastError(t *testing.T) {
	var results []fakeResult
	for range DefaultLadder {
		results = append(results, fakeResult{err: errors.New("device or resource busy")})
	}
	src := &fakeSource{results: results}

	_, err := Acquire(src, DefaultLadder, zerolog.Nop())
	var me *domain.MediaError
	if !errors.As(err, &me) {
		t.Fatalf("expected *domain.MediaError, got %v", err)
	}
	if me.Code != domain.MediaDeviceBusy {
		t.Errorf("expected DEVICE_BUSY, got %s", me.Code)
	}
	if len(src.calls) != len(DefaultLadder) {
		t.Errorf("expected all %d tiers attempted, got %d", len(DefaultLadder), len(src.calls))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want domain.MediaErrorCode
	}{
		{errors.New("NotAllowedError: Permission denied"), domain.MediaPermissionDenied},
		{errors.New("getUserMedia: permission dismissed"), domain.MediaPermissionDenied},
		{errors.New("NotFoundError: Requested device not found"), domain.MediaDeviceNotFound},
		{errors.New("no media devices found"), domain.MediaDeviceNotFound},
		{errors.New("NotReadableError: Could not start video source"), domain.MediaDeviceBusy},
		{errors.New("open /dev/video0: device or resource busy"), domain.MediaDeviceBusy},
		{errors.New("OverconstrainedError: width"), domain.MediaConstraintsUnsatisfiable},
		{errors.New("failed to find the best driver that fits the constraints"), domain.MediaConstraintsUnsatisfiable},
		{errors.New("something else entirely"), domain.MediaUnknown},
		{fmt.Errorf("wrapped: %w", domain.NewMediaError(domain.MediaDeviceBusy, nil)), domain.MediaDeviceBusy},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got.Code != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.err, got.Code, tc.want)
		}
	}
}

func TestStream_StopIsIdempotent(t *testing.T) {
	s, v, a := avStream()
	s.Stop()
	s.Stop()
	if v.stops != 1 || a.stops != 1 {
		t.Errorf("expected each track stopped exactly once, got video=%d audio=%d", v.stops, a.stops)
	}
	if s.HasVideo() || s.HasAudio() {
		t.Error("expected no live tracks after Stop")
	}
}
