package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/models"
	"github.com/mossy-p/webrtc-signaling/internal/transport"
)

// Config wires a Session to its collaborators.
type Config struct {
	RoomID        string
	ParticipantID string
	Transport     transport.Transport
	Media         MediaSource
	NewPeer       PeerFactory
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Session is one client's call state for one room.
type Session struct {
	roomID  string
	selfID  string
	ch      transport.Channel
	media   MediaSource
	newPeer PeerFactory
	log     zerolog.Logger

	// ctx bounds work triggered by remote signals.
	ctx       context.Context
	cancel    context.CancelFunc
	box       *mailbox
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error

	// Owned by the loop goroutine.
	st  callState
	gen uint64

	mu        sync.RWMutex
	snap      Snapshot
	watchers  map[int]func(Snapshot)
	nextWatch int
}

type event interface{}

type signalEvent struct{ msg models.SignalMessage }

type commandEvent struct {
	ctx  context.Context
	run  func() error
	err  *error
	done chan struct{}
}

type localCandidateEvent struct {
	gen       uint64
	candidate webrtc.ICECandidateInit
}

type remoteTrackEvent struct {
	gen   uint64
	track *webrtc.TrackRemote
}

type iceStateEvent struct {
	gen   uint64
	state webrtc.ICEConnectionState
}

// Open subscribes to the room's signaling channel and starts the session.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	switch {
	case cfg.RoomID == "":
		return nil, errors.New("call: room id is required")
	case cfg.ParticipantID == "":
		return nil, errors.New("call: participant id is required")
	case cfg.Transport == nil, cfg.Media == nil, cfg.NewPeer == nil:
		return nil, errors.New("call: transport, media and peer factory are required")
	}

	ch, err := cfg.Transport.Subscribe(ctx, cfg.RoomID)
	if err != nil {
		return nil, fmt.Errorf("call: subscribe %s: %w", transport.ChannelName(cfg.RoomID), err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	lifetime, cancel := context.WithCancel(context.Background())
	s := &Session{
		roomID:  cfg.RoomID,
		selfID:  cfg.ParticipantID,
		ch:      ch,
		media:   cfg.Media,
		newPeer: cfg.NewPeer,
		log: logger.With().
			Str("module", "call").
			Str("room", cfg.RoomID).
			Str("self", cfg.ParticipantID).
			Logger(),
		ctx:      lifetime,
		cancel:   cancel,
		box:      newMailbox(),
		stopped:  make(chan struct{}),
		st:       idle{},
		snap:     Snapshot{State: StateIdle},
		watchers: make(map[int]func(Snapshot)),
	}

	ch.OnMessage(func(msg models.SignalMessage) {
		s.box.push(signalEvent{msg: msg})
	})
	go s.run()
	return s, nil
}

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Watch registers fn for every state change. fn runs on the session
// goroutine and must not call Session methods synchronously.
func (s *Session) Watch(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// StartCall rings the other participant. Media is not acquired until the
// call is accepted.
func (s *Session) StartCall(ctx context.Context, withVideo bool) error {
	return s.exec(ctx, func() error { return s.startCall(withVideo) })
}

// AcceptCall answers the ringing call. A media failure is returned and the
// session goes back to idle.
func (s *Session) AcceptCall(ctx context.Context) error {
	return s.exec(ctx, func() error { return s.acceptCall(ctx) })
}

// RejectCall declines an incoming call. In any other non-idle state it hangs
// up. It is a no-op while idle.
func (s *Session) RejectCall(ctx context.Context) error {
	return s.exec(ctx, func() error { s.leave(); return nil })
}

// EndCall hangs up or cancels the current call. It is a no-op while idle.
func (s *Session) EndCall(ctx context.Context) error {
	return s.exec(ctx, func() error { s.leave(); return nil })
}

// ToggleAudio mutes or unmutes the microphone and returns the new muted flag.
func (s *Session) ToggleAudio(ctx context.Context) (muted bool, err error) {
	err = s.exec(ctx, func() error {
		c, ok := s.st.(*connected)
		if !ok {
			return ErrNotConnected
		}
		c.audioMuted = !c.audioMuted
		if err := c.local.setEnabled(webrtc.RTPCodecTypeAudio, !c.audioMuted); err != nil {
			s.log.Warn().Err(err).Msg("toggle audio")
		}
		muted = c.audioMuted
		return nil
	})
	return muted, err
}

// ToggleVideo turns the camera off or on and returns the new video-off flag.
func (s *Session) ToggleVideo(ctx context.Context) (off bool, err error) {
	err = s.exec(ctx, func() error {
		c, ok := s.st.(*connected)
		if !ok {
			return ErrNotConnected
		}
		c.videoOff = !c.videoOff
		if err := c.local.setEnabled(webrtc.RTPCodecTypeVideo, !c.videoOff); err != nil {
			s.log.Warn().Err(err).Msg("toggle video")
		}
		off = c.videoOff
		return nil
	})
	return off, err
}

// Close hangs up any active call, stops the session and leaves the room.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.EndCall(ctx); err != nil {
			s.log.Warn().Err(err).Msg("hangup on close")
		}
		s.cancel()
		<-s.stopped
		s.closeErr = s.ch.Unsubscribe()
	})
	return s.closeErr
}

// exec runs fn on the session goroutine and waits for it. A command whose
// ctx is done by the time the loop reaches it is skipped and reports
// ctx.Err(); once started it always runs to completion.
func (s *Session) exec(ctx context.Context, fn func() error) error {
	var err error
	done := make(chan struct{})
	s.box.push(commandEvent{ctx: ctx, run: fn, err: &err, done: done})
	select {
	case <-done:
		return err
	case <-s.stopped:
		select {
		case <-done:
			return err
		default:
			return ErrClosed
		}
	}
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ctx.Done():
			s.release()
			s.publish()
			return
		case <-s.box.notify:
			for _, ev := range s.box.drain() {
				s.handle(ev)
				s.publish()
			}
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case commandEvent:
		if err := ev.ctx.Err(); err != nil {
			*ev.err = err
		} else {
			*ev.err = ev.run()
		}
		close(ev.done)
	case signalEvent:
		s.handleSignal(ev.msg)
	case localCandidateEvent:
		if s.current(ev.gen) != nil {
			s.send(models.SignalTypeCandidate, models.CandidatePayload{Candidate: ev.candidate})
		}
	case remoteTrackEvent:
		if c := s.current(ev.gen); c != nil {
			c.remote = c.remote.with(ev.track)
			s.log.Info().Str("kind", ev.track.Kind().String()).Msg("remote track")
		}
	case iceStateEvent:
		if s.current(ev.gen) == nil {
			return
		}
		s.log.Info().Str("ice_state", ev.state.String()).Msg("ICE state")
		if ev.state == webrtc.ICEConnectionStateDisconnected || ev.state == webrtc.ICEConnectionStateFailed {
			// Same as a remote call-end; nothing is broadcast.
			s.release()
		}
	}
}

// current returns the connected state if gen is its live peer connection.
func (s *Session) current(gen uint64) *connected {
	c, ok := s.st.(*connected)
	if !ok || c.gen != gen {
		return nil
	}
	return c
}

func (s *Session) publish() {
	snap := snapshotOf(s.st)
	s.mu.Lock()
	if snap == s.snap {
		s.mu.Unlock()
		return
	}
	s.snap = snap
	watchers := make([]func(Snapshot), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(snap)
	}
}

func (s *Session) setState(st callState) {
	if prev := s.st.State(); prev != st.State() {
		s.log.Info().Str("from", prev.String()).Str("to", st.State().String()).Msg("call state")
	}
	s.st = st
}

func (s *Session) startCall(withVideo bool) error {
	if _, ok := s.st.(idle); !ok {
		return ErrCallInProgress
	}
	s.setState(calling{withVideo: withVideo})
	s.send(models.SignalTypeCallRequest, models.MediaPayload{Video: withVideo})
	return nil
}

func (s *Session) acceptCall(ctx context.Context) error {
	in, ok := s.st.(incoming)
	if !ok {
		return ErrNoIncomingCall
	}

	c, err := s.connect(ctx, in.caller, in.withVideo, roleAnswerer)
	if err != nil {
		s.log.Warn().Err(err).Msg("accept failed")
		s.setState(idle{})
		// The caller would otherwise ring forever.
		s.send(models.SignalTypeCallReject, nil)
		return err
	}

	s.setState(c)
	s.send(models.SignalTypeCallAccept, models.MediaPayload{Video: in.withVideo})
	return nil
}

// leave backs out of whatever call is in progress.
func (s *Session) leave() {
	switch s.st.(type) {
	case idle:
	case incoming:
		s.setState(idle{})
		s.send(models.SignalTypeCallReject, nil)
	default:
		s.send(models.SignalTypeCallEnd, nil)
		s.release()
	}
}

// connect opens a peer connection and captures local media into it.
func (s *Session) connect(ctx context.Context, peer string, withVideo bool, r role) (*connected, error) {
	s.gen++
	gen := s.gen
	pc, err := s.newPeer(PeerEvents{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			s.box.push(localCandidateEvent{gen: gen, candidate: c})
		},
		OnTrack: func(t *webrtc.TrackRemote) {
			s.box.push(remoteTrackEvent{gen: gen, track: t})
		},
		OnICEConnectionStateChange: func(st webrtc.ICEConnectionState) {
			s.box.push(iceStateEvent{gen: gen, state: st})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open peer connection: %w", err)
	}

	tracks, err := s.media.GetUserMedia(ctx, constraintsFor(withVideo))
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("acquire media: %w", err)
	}

	local := newLocalStream(tracks)
	if err := local.attach(pc); err != nil {
		_ = local.stop()
		_ = pc.Close()
		return nil, err
	}

	return &connected{
		peer:      peer,
		withVideo: withVideo,
		role:      r,
		gen:       gen,
		pc:        pc,
		local:     local,
	}, nil
}

// release stops local media, closes the peer connection and returns to idle.
// Safe to call from any state, any number of times.
func (s *Session) release() {
	if c, ok := s.st.(*connected); ok {
		if err := c.local.stop(); err != nil {
			s.log.Warn().Err(err).Msg("stop local media")
		}
		if err := c.pc.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close peer connection")
		}
	}
	s.setState(idle{})
}

// send broadcasts on the session lifetime, never on a caller's context.
func (s *Session) send(t models.SignalType, payload any) {
	msg, err := models.NewSignal(t, s.selfID, payload)
	if err != nil {
		s.log.Error().Err(err).Msg("build signal")
		return
	}
	msg.RoomID = s.roomID
	if err := s.ch.Send(s.ctx, msg); err != nil {
		s.log.Warn().Err(err).Str("signal", string(t)).Msg("send failed")
	}
}
