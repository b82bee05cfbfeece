package call

import "sync"

// Action is a control the call UI offers on a screen.
type Action string

const (
	ActionCancel      Action = "cancel"
	ActionAccept      Action = "accept"
	ActionReject      Action = "reject"
	ActionToggleAudio Action = "toggle-audio"
	ActionToggleVideo Action = "toggle-video"
	ActionHangup      Action = "hangup"
	ActionDismiss     Action = "dismiss"
)

// View is what a call overlay renders for one snapshot.
type View struct {
	Screen     State
	PeerName   string
	WithVideo  bool
	AudioMuted bool
	VideoOff   bool
	Local      *LocalStream
	Remote     *RemoteStream
	Actions    []Action
}

// Visible reports whether anything should be shown.
func (v View) Visible() bool { return v.Screen != StateIdle }

// Presenter turns session snapshots into views. It adds the display-only
// ended screen shown after a call falls back to idle. Update and Dismiss may
// be called from different goroutines.
type Presenter struct {
	peerName string

	mu    sync.Mutex
	last  State
	ended bool
}

func NewPresenter(peerName string) *Presenter {
	return &Presenter{peerName: peerName}
}

// Update records snap and returns the view to render.
func (p *Presenter) Update(snap Snapshot) View {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case snap.State != StateIdle:
		p.ended = false
	case p.last != StateIdle:
		p.ended = true
	}
	p.last = snap.State

	v := View{
		Screen:     snap.State,
		PeerName:   p.peerName,
		WithVideo:  snap.WithVideo,
		AudioMuted: snap.IsAudioMuted,
		VideoOff:   snap.IsVideoOff,
		Local:      snap.LocalStream,
		Remote:     snap.RemoteStream,
	}

	switch snap.State {
	case StateCalling:
		v.Actions = []Action{ActionCancel}
	case StateIncoming:
		v.Actions = []Action{ActionAccept, ActionReject}
	case StateConnected:
		v.Actions = []Action{ActionToggleAudio}
		if snap.WithVideo {
			v.Actions = append(v.Actions, ActionToggleVideo)
		}
		v.Actions = append(v.Actions, ActionHangup)
	case StateIdle:
		if p.ended {
			v.Screen = StateEnded
			v.Actions = []Action{ActionDismiss}
		}
	}
	return v
}

// Dismiss hides the ended screen.
func (p *Presenter) Dismiss() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = false
	return View{Screen: StateIdle, PeerName: p.peerName}
}
