package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	replaced []webrtc.TrackLocal
}

func (f *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, t)
	return nil
}

func (f *fakeSender) history() []webrtc.TrackLocal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), f.replaced...)
}

type fakePeer struct {
	events PeerEvents

	mu         sync.Mutex
	offers     int
	answers    int
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	senders    map[webrtc.RTPCodecType]*fakeSender
	closed     int
}

func (p *fakePeer) AddTrack(t webrtc.TrackLocal) (Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &fakeSender{}
	p.senders[t.Kind()] = s
	return s, nil
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &d
	return nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &d
	return nil
}

func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("no remote description")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) counts() (offers, answers, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers, p.answers, p.closed
}

func (p *fakePeer) applied() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *fakePeer) sender(kind webrtc.RTPCodecType) *fakeSender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.senders[kind]
}

type peerFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (f *peerFactory) New(events PeerEvents) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{events: events, senders: make(map[webrtc.RTPCodecType]*fakeSender)}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *peerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *peerFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

type fakeTrack struct {
	*webrtc.TrackLocalStaticSample
	closed atomic.Int32
}

func (t *fakeTrack) Close() error {
	t.closed.Add(1)
	return nil
}

type fakeMedia struct {
	t   *testing.T
	err error

	mu       sync.Mutex
	requests []Constraints
	tracks   []*fakeTrack
}

func (m *fakeMedia) GetUserMedia(_ context.Context, c Constraints) ([]MediaTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	if m.err != nil {
		return nil, m.err
	}

	var out []MediaTrack
	add := func(mime, id string) {
		s, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "local")
		require.NoError(m.t, err)
		ft := &fakeTrack{TrackLocalStaticSample: s}
		m.tracks = append(m.tracks, ft)
		out = append(out, ft)
	}
	add(webrtc.MimeTypeOpus, "audio")
	if c.Video {
		add(webrtc.MimeTypeVP8, "video")
	}
	return out, nil
}

func (m *fakeMedia) lastRequest() Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// allClosedOnce reports whether every captured track was stopped exactly once.
func (m *fakeMedia) allClosedOnce() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		if t.closed.Load() != 1 {
			return false
		}
	}
	return len(m.tracks) > 0
}
