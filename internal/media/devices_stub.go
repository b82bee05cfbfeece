//go:build !linux || !cgo

package media

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/webrtc-signaling/internal/call"
)

// Devices has no capture drivers on this build. Calls fail at media
// acquisition and fall back to idle.
type Devices struct{}

func NewDevices() (*Devices, error) {
	return &Devices{}, nil
}

func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	return registerDefaults(m)
}

func (d *Devices) GetUserMedia(_ context.Context, _ call.Constraints) ([]call.MediaTrack, error) {
	return nil, ErrCaptureUnsupported
}
