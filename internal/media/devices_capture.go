//go:build linux && cgo

package media

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/call"
)

// Devices captures through pion/mediadevices (V4L2 camera, malgo microphone)
// and encodes VP8 + Opus.
type Devices struct {
	codecs *mediadevices.CodecSelector
}

func NewDevices() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	return &Devices{
		codecs: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// RegisterCodecs implements rtc.CodecRegistrar.
func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	d.codecs.Populate(m)
	return nil
}

// GetUserMedia implements call.MediaSource. Audio is always requested.
func (d *Devices) GetUserMedia(ctx context.Context, c call.Constraints) ([]call.MediaTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: d.codecs}
	constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// Raw formats only; MJPEG nodes on some cameras feed the encoder
			// broken frames.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.Int(c.Width)
			mc.Height = prop.Int(c.Height)
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	var tracks []call.MediaTrack
	for _, t := range stream.GetTracks() {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("local track ended")
			}
		})
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}

	log.Info().Str("module", "media").Int("tracks", len(tracks)).Bool("video", c.Video).Msg("local media captured")
	return tracks, nil
}
