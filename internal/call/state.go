package call

import "github.com/pion/webrtc/v4"

// callState is the session's tagged state. Each variant carries only what is
// valid in it, so e.g. a remote stream cannot exist while idle.
type callState interface {
	State() State
}

type idle struct{}

type calling struct {
	withVideo bool
}

type incoming struct {
	caller    string
	withVideo bool
}

type role int

const (
	roleOfferer role = iota
	roleAnswerer
)

func (r role) String() string {
	if r == roleOfferer {
		return "offerer"
	}
	return "answerer"
}

type connected struct {
	peer      string
	withVideo bool
	role      role

	// gen identifies pc; callbacks from older connections are dropped.
	gen uint64
	pc  PeerConnection

	local  *LocalStream
	remote *RemoteStream

	// pending holds remote candidates that arrived before the remote
	// description. Empty whenever pc has a remote description.
	pending []webrtc.ICECandidateInit

	// awaitingAnswer is set on the offerer between sending the offer and
	// applying the answer.
	awaitingAnswer bool

	audioMuted bool
	videoOff   bool
}

func (idle) State() State       { return StateIdle }
func (calling) State() State    { return StateCalling }
func (incoming) State() State   { return StateIncoming }
func (*connected) State() State { return StateConnected }

func snapshotOf(st callState) Snapshot {
	switch st := st.(type) {
	case calling:
		return Snapshot{State: StateCalling, WithVideo: st.withVideo}
	case incoming:
		return Snapshot{State: StateIncoming, Peer: st.caller, WithVideo: st.withVideo}
	case *connected:
		return Snapshot{
			State:        StateConnected,
			Peer:         st.peer,
			WithVideo:    st.withVideo,
			IsAudioMuted: st.audioMuted,
			IsVideoOff:   st.videoOff,
			LocalStream:  st.local,
			RemoteStream: st.remote,
		}
	}
	return Snapshot{State: StateIdle}
}
