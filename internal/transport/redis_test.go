package transport

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBroadcastBetweenClients(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)

	aliceTr, bobTr := NewRedis(client), NewRedis(client)
	t.Cleanup(func() {
		_ = aliceTr.Close()
		_ = bobTr.Close()
	})

	alice, err := aliceTr.Subscribe(ctx, "booking-42")
	require.NoError(t, err)
	bob, err := bobTr.Subscribe(ctx, "booking-42")
	require.NoError(t, err)
	aliceIn, bobIn := collect(alice), collect(bob)

	msg, err := models.NewSignal(models.SignalTypeCallAccept, "bob", models.MediaPayload{Video: true})
	require.NoError(t, err)
	require.NoError(t, bob.Send(ctx, msg))

	got := receive(t, aliceIn)
	assert.Equal(t, models.SignalTypeCallAccept, got.Type)
	assert.Equal(t, "bob", got.SenderID)
	assert.Equal(t, "booking-42", got.RoomID)

	var p models.MediaPayload
	require.NoError(t, got.DecodePayload(&p))
	assert.True(t, p.Video)

	assertNothing(t, bobIn)
}

func TestRedisPublishesOnRoomChannel(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)

	raw := client.Subscribe(ctx, ChannelName("booking-42"))
	_, err := raw.Receive(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	tr := NewRedis(client)
	t.Cleanup(func() { _ = tr.Close() })
	ch, err := tr.Subscribe(ctx, "booking-42")
	require.NoError(t, err)
	require.NoError(t, ch.Send(ctx, models.SignalMessage{Type: models.SignalTypeCallEnd, SenderID: "alice"}))

	m, err := raw.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "call-booking-42", m.Channel)

	var env envelope
	require.NoError(t, models.Unmarshal([]byte(m.Payload), &env))
	assert.Equal(t, models.SignalTypeCallEnd, env.Message.Type)
	assert.NotEmpty(t, env.Origin)
}

func TestRedisUnsubscribe(t *testing.T) {
	ctx := context.Background()
	tr := NewRedis(newRedisClient(t))

	ch, err := tr.Subscribe(ctx, "booking-42")
	require.NoError(t, err)
	again, err := tr.Subscribe(ctx, "booking-42")
	require.NoError(t, err)
	assert.Same(t, ch, again)

	require.NoError(t, ch.Unsubscribe())
	assert.NoError(t, ch.Unsubscribe())
	assert.ErrorIs(t, ch.Send(ctx, models.SignalMessage{Type: models.SignalTypeCallEnd}), ErrClosed)
	assert.NoError(t, tr.Close())
}
