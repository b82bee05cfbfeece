package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

func newRooms(t *testing.T) (*Rooms, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRooms(client, time.Hour), mr
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	rooms, mr := newRooms(t)

	room := models.RoomMetadata{
		ID:           "booking-42",
		Participants: []string{"alice", "bob"},
		CreatorID:    "alice",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, rooms.Create(ctx, room))
	assert.ErrorIs(t, rooms.Create(ctx, room), ErrRoomExists)
	assert.Equal(t, time.Hour, mr.TTL("room:booking-42"))

	got, err := rooms.Get(ctx, "booking-42")
	require.NoError(t, err)
	assert.Equal(t, room.Participants, got.Participants)
	assert.Equal(t, "alice", got.CreatorID)
	assert.True(t, room.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, 0, got.ConnectionCount)

	require.NoError(t, rooms.AddConnection(ctx, "booking-42", "c1", 2))
	got, err = rooms.Get(ctx, "booking-42")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConnectionCount)

	require.NoError(t, rooms.Delete(ctx, "booking-42"))
	_, err = rooms.Get(ctx, "booking-42")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.False(t, mr.Exists("room:booking-42:peers"))
}

func TestConnectionLimit(t *testing.T) {
	ctx := context.Background()
	rooms, mr := newRooms(t)

	require.NoError(t, rooms.AddConnection(ctx, "booking-42", "c1", 2))
	require.NoError(t, rooms.AddConnection(ctx, "booking-42", "c2", 2))
	assert.ErrorIs(t, rooms.AddConnection(ctx, "booking-42", "c3", 2), ErrRoomFull)

	members, err := mr.Members("room:booking-42:peers")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, members)

	require.NoError(t, rooms.RemoveConnection(ctx, "booking-42", "c1"))
	assert.NoError(t, rooms.AddConnection(ctx, "booking-42", "c3", 2))
}

// failingCommand makes every command with the given name fail.
type failingCommand struct{ name string }

func (f failingCommand) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f failingCommand) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == f.name {
			err := errors.New("injected " + f.name + " failure")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (f failingCommand) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestConnectionLimitRollbackFailure(t *testing.T) {
	ctx := context.Background()
	rooms, mr := newRooms(t)

	require.NoError(t, rooms.AddConnection(ctx, "booking-42", "c1", 1))
	rooms.client.AddHook(failingCommand{name: "srem"})

	err := rooms.AddConnection(ctx, "booking-42", "c2", 1)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.ErrorContains(t, err, "roll back connection c2")
	assert.NotEqual(t, ErrRoomFull, err)

	members, merr := mr.Members("room:booking-42:peers")
	require.NoError(t, merr)
	assert.ElementsMatch(t, []string{"c1", "c2"}, members)
}

func TestAddConnectionRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	rooms, mr := newRooms(t)

	require.NoError(t, rooms.AddConnection(ctx, "booking-42", "c1", 2))
	assert.Equal(t, time.Hour, mr.TTL("room:booking-42:peers"))

	mr.SetError("ERR injected failure")
	assert.Error(t, rooms.AddConnection(ctx, "booking-42", "c2", 2))
	mr.SetError("")

	members, err := mr.Members("room:booking-42:peers")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, members)
}
