// Package media captures the local microphone and camera for calls.
package media

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrCaptureUnsupported is returned by GetUserMedia on builds without
// capture drivers (anything but linux with cgo).
var ErrCaptureUnsupported = errors.New("media: capture not supported on this build")

// ErrNoTracks is returned when capture produced no usable track.
var ErrNoTracks = errors.New("media: no tracks captured")

func registerDefaults(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}
