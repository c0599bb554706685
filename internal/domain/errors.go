package domain

import (
	"errors"
	"fmt"
)

// ErrCallInProgress is returned when a call is started or accepted while
// another session is still live. The prior session keeps its hardware.
var ErrCallInProgress = errors.New("a call is already in progress")

// ErrNoSession is returned for operations that require a live session.
var ErrNoSession = errors.New("no active call session")

// MediaErrorCode classifies why local media acquisition failed.
type MediaErrorCode string

const (
	MediaPermissionDenied         MediaErrorCode = "PERMISSION_DENIED"
	MediaDeviceNotFound           MediaErrorCode = "DEVICE_NOT_FOUND"
	MediaDeviceBusy               MediaErrorCode = "DEVICE_BUSY"
	MediaConstraintsUnsatisfiable MediaErrorCode = "CONSTRAINTS_UNSATISFIABLE"
	MediaNoVideoTrack             MediaErrorCode = "NO_VIDEO_TRACK_RETURNED"
	MediaUnknown                  MediaErrorCode = "UNKNOWN"
)

// hints maps each code to an actionable remediation message. A generic
// "call failed" is useless to the person staring at a black preview.
var hints = map[MediaErrorCode]string{
	MediaPermissionDenied:         "camera/microphone access was denied; allow access in your system or browser settings and try again",
	MediaDeviceNotFound:           "no camera or microphone was found; plug in a device and try again",
	MediaDeviceBusy:               "the camera or microphone is in use by another application; close it and try again",
	MediaConstraintsUnsatisfiable: "the device does not support the requested capture settings",
	MediaNoVideoTrack:             "the camera did not deliver a video track; try reconnecting the device",
	MediaUnknown:                  "could not access camera or microphone",
}

// MediaError is a classified media acquisition failure.
type MediaError struct {
	Code  MediaErrorCode
	cause error
}

// NewMediaError wraps cause with a classification code.
func NewMediaError(code MediaErrorCode, cause error) *MediaError {
	return &MediaError{Code: code, cause: cause}
}

func (e *MediaError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("media: %s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("media: %s", e.Code)
}

func (e *MediaError) Unwrap() error { return e.cause }

// Hint returns the user-facing remediation message for this failure.
func (e *MediaError) Hint() string {
	if h, ok := hints[e.Code]; ok {
		return h
	}
	return hints[MediaUnknown]
}
