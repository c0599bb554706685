package media

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"chatline/callcore/internal/domain"
)

// Source is a getUserMedia-equivalent capture backend.
type Source interface {
	GetUserMedia(p Profile) (*Stream, error)
}

// Acquire walks the quality ladder until one tier delivers a usable stream.
//
// A tier that returns a stream without a video track when video was
// requested is a soft failure: the stream is stopped and the next tier is
// tried. A permission-class failure aborts the ladder immediately, since
// retrying cannot succeed without user action. Device-busy and similar
// failures fall through to the next tier. If every tier fails, the last
// classified error is returned.
func Acquire(src Source, ladder []Profile, log zerolog.Logger) (*Stream, error) {
	var lastErr *domain.MediaError

	for _, p := range ladder {
		stream, err := src.GetUserMedia(p)
		if err != nil {
			me := Classify(err)
			log.Warn().Err(err).Str("tier", p.Label).Str("code", string(me.Code)).Msg("capture tier failed")
			if me.Code == domain.MediaPermissionDenied {
				return nil, me
			}
			lastErr = me
			continue
		}

		if p.Video != nil && !stream.HasVideo() {
			log.Warn().Str("tier", p.Label).Msg("capture tier returned no video track")
			stream.Stop()
			lastErr = domain.NewMediaError(domain.MediaNoVideoTrack, nil)
			continue
		}

		log.Debug().Str("tier", p.Label).Int("tracks", len(stream.Tracks())).Msg("local media acquired")
		return stream, nil
	}

	if lastErr == nil {
		lastErr = domain.NewMediaError(domain.MediaUnknown, nil)
	}
	return nil, lastErr
}

// Classify maps a raw capture failure into the MediaError taxonomy. Driver
// errors are plain strings, so classification is by message content, with
// browser-style error names recognized alongside the usual OS phrasings.
func Classify(err error) *domain.MediaError {
	var me *domain.MediaError
	if errors.As(err, &me) {
		return me
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "notallowed", "permission denied", "permission dismissed", "security"):
		return domain.NewMediaError(domain.MediaPermissionDenied, err)
	case containsAny(msg, "notfound", "no such device", "no media devices", "device not found"):
		return domain.NewMediaError(domain.MediaDeviceNotFound, err)
	case containsAny(msg, "notreadable", "resource busy", "device busy", "in use", "trackstart"):
		return domain.NewMediaError(domain.MediaDeviceBusy, err)
	case containsAny(msg, "overconstrained", "constraint", "failed to find the best driver"):
		return domain.NewMediaError(domain.MediaConstraintsUnsatisfiable, err)
	default:
		return domain.NewMediaError(domain.MediaUnknown, err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
