//go:build !linux || !cgo

package media

import (
	"errors"

	"github.com/rs/zerolog"
)

// DeviceSource is only wired to real capture drivers on Linux.
type DeviceSource struct{}

// NewDeviceSource reports that capture is unsupported on this platform.
func NewDeviceSource(_ zerolog.Logger) (*DeviceSource, error) {
	return nil, errors.New("local media capture is not supported on this platform")
}

// GetUserMedia always fails on unsupported platforms.
func (d *DeviceSource) GetUserMedia(_ Profile) (*Stream, error) {
	return nil, errors.New("local media capture is not supported on this platform")
}
