package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomFull     = errors.New("room is full")
)

// Rooms keeps call room metadata and live connection sets in Redis.
type Rooms struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRooms(client *redis.Client, ttl time.Duration) *Rooms {
	return &Rooms{client: client, ttl: ttl}
}

func roomKey(id string) string  { return "room:" + id }
func peersKey(id string) string { return "room:" + id + ":peers" }

// Create stores room unless a room with the same id exists.
func (r *Rooms) Create(ctx context.Context, room models.RoomMetadata) error {
	data, err := models.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	ok, err := r.client.SetNX(ctx, roomKey(room.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("store room: %w", err)
	}
	if !ok {
		return ErrRoomExists
	}
	return nil
}

// Get loads a room with its current connection count.
func (r *Rooms) Get(ctx context.Context, id string) (*models.RoomMetadata, error) {
	data, err := r.client.Get(ctx, roomKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}

	var room models.RoomMetadata
	if err := models.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to parse room data: %w", err)
	}

	count, err := r.client.SCard(ctx, peersKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("count connections: %w", err)
	}
	room.ConnectionCount = int(count)
	return &room, nil
}

func (r *Rooms) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, roomKey(id), peersKey(id)).Err()
}

// AddConnection records connID in the room, refusing it when the room would
// exceed max connections. A failed rollback is joined to ErrRoomFull.
func (r *Rooms) AddConnection(ctx context.Context, roomID, connID string, max int) error {
	key := peersKey(roomID)
	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, connID)
		pipe.Expire(ctx, key, r.ttl)
		count = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add connection: %w", err)
	}

	if int(count.Val()) > max {
		if err := r.client.SRem(ctx, key, connID).Err(); err != nil {
			return errors.Join(ErrRoomFull, fmt.Errorf("roll back connection %s: %w", connID, err))
		}
		return ErrRoomFull
	}
	return nil
}

func (r *Rooms) RemoveConnection(ctx context.Context, roomID, connID string) error {
	return r.client.SRem(ctx, peersKey(roomID), connID).Err()
}
