//go:build linux && cgo

package media

import (
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// DeviceSource captures local camera/microphone via pion/mediadevices
// (V4L2 + malgo on Linux), encoding to VP8 and Opus.
type DeviceSource struct {
	selector *mediadevices.CodecSelector
	log      zerolog.Logger
}

// NewDeviceSource builds the capture source with VP8+Opus encoders.
func NewDeviceSource(log zerolog.Logger) (*DeviceSource, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	return &DeviceSource{selector: selector, log: log.With().Str("component", "media").Logger()}, nil
}

// GetUserMedia opens the devices described by the profile.
func (d *DeviceSource) GetUserMedia(p Profile) (*Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}

	if v := p.Video; v != nil {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only. Some cameras expose an MJPEG node that
			// produces malformed frames and poisons the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			if v.Width > 0 {
				c.Width = prop.IntRanged{Ideal: v.Width}
			}
			if v.Height > 0 {
				c.Height = prop.IntRanged{Ideal: v.Height}
			}
			if v.FrameRate > 0 {
				c.FrameRate = prop.FloatRanged{Ideal: float64(v.FrameRate)}
			}
		}
	}
	if p.Audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media (%s): %w", p.Label, err)
	}

	tracks := make([]Track, 0, len(ms.GetTracks()))
	for _, t := range ms.GetTracks() {
		d.log.Debug().Str("tier", p.Label).Str("id", t.ID()).Msg("captured track")
		tracks = append(tracks, &deviceTrack{t: t})
	}
	return NewStream(tracks...), nil
}

// deviceTrack adapts a mediadevices track to the Track interface.
type deviceTrack struct {
	t mediadevices.Track

	mu    sync.Mutex
	ended bool
}

func (d *deviceTrack) ID() string { return d.t.ID() }

func (d *deviceTrack) Kind() Kind {
	if d.t.Kind() == pion.RTPCodecTypeVideo {
		return KindVideo
	}
	return KindAudio
}

func (d *deviceTrack) Local() pion.TrackLocal { return d.t }

func (d *deviceTrack) Stop() error {
	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return nil
	}
	d.ended = true
	d.mu.Unlock()
	return d.t.Close()
}

func (d *deviceTrack) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}
