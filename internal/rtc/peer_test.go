package rtc

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/webrtc-signaling/internal/call"
)

func newPeer(t *testing.T, f *Factory) call.PeerConnection {
	t.Helper()
	pc, err := f.NewPeer(call.PeerEvents{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func TestOfferAnswerWithoutNetwork(t *testing.T) {
	f, err := NewFactory(Config{
		DisconnectedTimeout: 5 * time.Second,
		FailedTimeout:       25 * time.Second,
	}, nil)
	require.NoError(t, err)

	offerer, answerer := newPeer(t, f), newPeer(t, f)

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "local")
	require.NoError(t, err)
	sender, err := offerer.AddTrack(audio)
	require.NoError(t, err)

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))
	assert.Nil(t, answerer.RemoteDescription())

	require.NoError(t, answerer.SetRemoteDescription(offer))
	require.NotNil(t, answerer.RemoteDescription())

	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	require.NoError(t, offerer.SetRemoteDescription(answer))
	assert.Equal(t, webrtc.SDPTypeAnswer, offerer.RemoteDescription().Type)

	// Muting swaps the sender's source without renegotiating.
	require.NoError(t, sender.ReplaceTrack(nil))
	require.NoError(t, sender.ReplaceTrack(audio))
}

type countingCodecs struct{ calls int }

func (c *countingCodecs) RegisterCodecs(m *webrtc.MediaEngine) error {
	c.calls++
	return m.RegisterDefaultCodecs()
}

func TestFactoryUsesCodecRegistrar(t *testing.T) {
	codecs := &countingCodecs{}
	f, err := NewFactory(DefaultConfig(), codecs)
	require.NoError(t, err)
	assert.Equal(t, 1, codecs.calls)
	assert.Len(t, f.cfg.ICEServers, 1)
}
