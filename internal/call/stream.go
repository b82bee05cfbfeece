package call

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// LocalStream is the media captured for one call. The owning Session stops
// it on every exit path.
type LocalStream struct {
	tracks  []*localTrack
	stopped bool
}

type localTrack struct {
	MediaTrack
	sender  Sender
	enabled bool
}

func newLocalStream(tracks []MediaTrack) *LocalStream {
	ls := &LocalStream{}
	for _, t := range tracks {
		ls.tracks = append(ls.tracks, &localTrack{MediaTrack: t, enabled: true})
	}
	return ls
}

// Tracks returns the captured tracks.
func (ls *LocalStream) Tracks() []MediaTrack {
	out := make([]MediaTrack, len(ls.tracks))
	for i, t := range ls.tracks {
		out[i] = t.MediaTrack
	}
	return out
}

// attach adds every track to pc and keeps the senders for toggling.
func (ls *LocalStream) attach(pc PeerConnection) error {
	for _, t := range ls.tracks {
		sender, err := pc.AddTrack(t.MediaTrack)
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		t.sender = sender
	}
	return nil
}

// setEnabled starts or stops transmitting every track of kind. The tracks
// keep running; only the sender's source is swapped.
func (ls *LocalStream) setEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	var errs []error
	for _, t := range ls.tracks {
		if t.Kind() != kind || t.enabled == enabled {
			continue
		}
		t.enabled = enabled
		if t.sender == nil {
			continue
		}
		var src webrtc.TrackLocal
		if enabled {
			src = t.MediaTrack
		}
		if err := t.sender.ReplaceTrack(src); err != nil {
			errs = append(errs, fmt.Errorf("%s track: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// stop closes every track once.
func (ls *LocalStream) stop() error {
	if ls == nil || ls.stopped {
		return nil
	}
	ls.stopped = true
	var errs []error
	for _, t := range ls.tracks {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoteStream holds the tracks received from the peer. It is never closed
// by this side, only dropped. A RemoteStream is immutable; a new track yields
// a new value.
type RemoteStream struct {
	id     string
	tracks []*webrtc.TrackRemote
}

func (rs *RemoteStream) ID() string { return rs.id }

func (rs *RemoteStream) Tracks() []*webrtc.TrackRemote {
	return append([]*webrtc.TrackRemote(nil), rs.tracks...)
}

func (rs *RemoteStream) with(track *webrtc.TrackRemote) *RemoteStream {
	next := &RemoteStream{id: track.StreamID()}
	if rs != nil {
		next.id = rs.id
		next.tracks = append(next.tracks, rs.tracks...)
	}
	next.tracks = append(next.tracks, track)
	return next
}
