package rtc

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/call"
)

// CodecRegistrar fills a MediaEngine with the codecs local capture encodes to.
type CodecRegistrar interface {
	RegisterCodecs(m *webrtc.MediaEngine) error
}

type Config struct {
	ICEServers []string
	// Zero values keep pion's defaults.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []string{"stun:stun.l.google.com:19302"},
	}
}

// Factory opens pion peer connections that share one API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

// NewFactory builds the pion API. A nil codecs registers pion's defaults.
func NewFactory(cfg Config, codecs CodecRegistrar) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if codecs != nil {
		if err := codecs.RegisterCodecs(mediaEngine); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.DisconnectedTimeout > 0 || cfg.FailedTimeout > 0 {
		keepAlive := cfg.KeepAliveInterval
		if keepAlive == 0 {
			keepAlive = 2 * time.Second
		}
		se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, keepAlive)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return &Factory{api: api, cfg: webrtc.Configuration{ICEServers: servers}}, nil
}

// NewPeer satisfies call.PeerFactory.
func (f *Factory) NewPeer(events call.PeerEvents) (call.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c != nil && events.OnICECandidate != nil {
			events.OnICECandidate(c.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			p.requestKeyframe(track)
		}
		if events.OnTrack != nil {
			events.OnTrack(track)
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if events.OnICEConnectionStateChange != nil {
			events.OnICEConnectionStateChange(s)
		}
	})

	return p, nil
}

// Peer adapts *webrtc.PeerConnection to call.PeerConnection.
type Peer struct {
	pc *webrtc.PeerConnection
}

func (p *Peer) AddTrack(track webrtc.TrackLocal) (call.Sender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go drainRTCP(sender)
	return sender, nil
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *Peer) RemoteDescription() *webrtc.SessionDescription {
	return p.pc.RemoteDescription()
}

func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

// requestKeyframe asks the sender for a keyframe so remote video starts
// without waiting for the next periodic one.
func (p *Peer) requestKeyframe(track *webrtc.TrackRemote) {
	err := p.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("PLI")
	}
}

// drainRTCP reads incoming RTCP so interceptors (NACK, TWCC) keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
