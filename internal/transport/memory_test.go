package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

func collect(ch Channel) <-chan models.SignalMessage {
	out := make(chan models.SignalMessage, 16)
	ch.OnMessage(func(m models.SignalMessage) { out <- m })
	return out
}

func receive(t *testing.T, in <-chan models.SignalMessage) models.SignalMessage {
	t.Helper()
	select {
	case m := <-in:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return models.SignalMessage{}
	}
}

func assertNothing(t *testing.T, in <-chan models.SignalMessage) {
	t.Helper()
	select {
	case m := <-in:
		t.Fatalf("unexpected %s message", m.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBroadcastSkipsSender(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	alice, err := hub.Transport().Subscribe(ctx, "room-1")
	require.NoError(t, err)
	bob, err := hub.Transport().Subscribe(ctx, "room-1")
	require.NoError(t, err)
	other, err := hub.Transport().Subscribe(ctx, "room-2")
	require.NoError(t, err)

	aliceIn, bobIn, otherIn := collect(alice), collect(bob), collect(other)

	msg, err := models.NewSignal(models.SignalTypeCallRequest, "alice", models.MediaPayload{Video: true})
	require.NoError(t, err)
	require.NoError(t, alice.Send(ctx, msg))

	got := receive(t, bobIn)
	assert.Equal(t, models.SignalTypeCallRequest, got.Type)
	assert.Equal(t, "alice", got.SenderID)
	assert.Equal(t, "room-1", got.RoomID)
	assertNothing(t, aliceIn)
	assertNothing(t, otherIn)
}

func TestMemorySubscribeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := NewHub().Transport()

	a, err := tr.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	b, err := tr.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "room-1", a.RoomID())

	require.NoError(t, a.Unsubscribe())
	require.NoError(t, a.Unsubscribe())
	assert.ErrorIs(t, a.Send(ctx, models.SignalMessage{Type: models.SignalTypeCallEnd}), ErrClosed)

	c, err := tr.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestMemoryUnsubscribedStopsReceiving(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	alice, err := hub.Transport().Subscribe(ctx, "room-1")
	require.NoError(t, err)
	bobTr := hub.Transport()
	bob, err := bobTr.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	bobIn := collect(bob)

	require.NoError(t, bobTr.Close())
	require.NoError(t, alice.Send(ctx, models.SignalMessage{Type: models.SignalTypeCallEnd, SenderID: "alice"}))
	assertNothing(t, bobIn)
}

func TestMemoryKeepsOrder(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	alice, err := hub.Transport().Subscribe(ctx, "room-1")
	require.NoError(t, err)
	bob, err := hub.Transport().Subscribe(ctx, "room-1")
	require.NoError(t, err)
	bobIn := collect(bob)

	types := []models.SignalType{models.SignalTypeOffer, models.SignalTypeCandidate, models.SignalTypeCandidate, models.SignalTypeCallEnd}
	for _, typ := range types {
		require.NoError(t, alice.Send(ctx, models.SignalMessage{Type: typ, SenderID: "alice"}))
	}
	for _, typ := range types {
		assert.Equal(t, typ, receive(t, bobIn).Type)
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "call-booking-42", ChannelName("booking-42"))
}
