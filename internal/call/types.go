// Package call runs the two-party call session state machine: ringing,
// accept/reject, SDP offer/answer, trickle ICE and teardown.
//
// All state lives in one goroutine per Session. Remote signals, local
// actions and peer connection callbacks are queued into the same mailbox and
// handled in arrival order, so no handler ever sees a half-applied
// transition.
package call

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	ErrCallInProgress = errors.New("call: a call is already in progress")
	ErrNoIncomingCall = errors.New("call: no incoming call to accept")
	ErrNotConnected   = errors.New("call: not connected")
	ErrClosed         = errors.New("call: session closed")
)

// State is the externally visible call state.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateIncoming
	StateConnected
	// StateEnded is never held by a Session. The Presenter shows it after a
	// call collapses back to idle.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateIncoming:
		return "incoming"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Constraints selects what GetUserMedia captures. Audio is always on.
type Constraints struct {
	Audio  bool
	Video  bool
	Width  int
	Height int
}

func constraintsFor(withVideo bool) Constraints {
	c := Constraints{Audio: true, Video: withVideo}
	if withVideo {
		c.Width, c.Height = 640, 480
	}
	return c
}

// MediaTrack is a captured local track.
type MediaTrack interface {
	webrtc.TrackLocal
	Close() error
}

// MediaSource acquires local media.
type MediaSource interface {
	GetUserMedia(ctx context.Context, c Constraints) ([]MediaTrack, error)
}

// Sender controls what a peer connection transmits for one local track.
type Sender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// PeerConnection is the part of a WebRTC peer connection a Session drives.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (Sender, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// PeerEvents are the callbacks a PeerConnection reports through. They may be
// invoked from any goroutine.
type PeerEvents struct {
	OnICECandidate             func(webrtc.ICECandidateInit)
	OnTrack                    func(*webrtc.TrackRemote)
	OnICEConnectionStateChange func(webrtc.ICEConnectionState)
}

// PeerFactory opens a new peer connection wired to events.
type PeerFactory func(events PeerEvents) (PeerConnection, error)

// Snapshot is the read-only view of a Session.
type Snapshot struct {
	State        State
	Peer         string
	WithVideo    bool
	IsAudioMuted bool
	IsVideoOff   bool
	LocalStream  *LocalStream
	RemoteStream *RemoteStream
}
