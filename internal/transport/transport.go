// Package transport is the per-room broadcast channel used to exchange call
// signaling messages. Delivery is best effort: no acknowledgement, no
// persistence, no replay and no reconnect. Callers rely on ICE liveness, not
// on the transport, to detect a vanished peer.
package transport

import (
	"context"
	"errors"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

var (
	ErrClosed       = errors.New("transport: channel closed")
	ErrBackpressure = errors.New("transport: send buffer full")
)

// Handler receives one message per delivery.
type Handler func(models.SignalMessage)

// Transport opens per-room channels.
type Transport interface {
	// Subscribe returns the channel for roomID, opening it on first use.
	// Subsequent calls for the same room return the same handle until it is
	// unsubscribed.
	Subscribe(ctx context.Context, roomID string) (Channel, error)
	// Close unsubscribes every open channel.
	Close() error
}

// Channel is a subscription to one room.
type Channel interface {
	RoomID() string
	// Send broadcasts msg to every other subscriber of the room. It never
	// delivers back to this handle.
	Send(ctx context.Context, msg models.SignalMessage) error
	// OnMessage sets the handler for received messages, replacing any
	// previous one. Messages received while no handler is set are dropped.
	OnMessage(h Handler)
	// Unsubscribe releases the channel. Safe to call more than once.
	Unsubscribe() error
}

// ChannelName is the pub/sub channel scoped to a room.
func ChannelName(roomID string) string {
	return "call-" + roomID
}

// envelope is what pub/sub backends carry: the message plus the handle that
// published it, so a handle can skip its own broadcasts.
type envelope struct {
	Origin  string               `json:"origin"`
	Message models.SignalMessage `json:"message"`
}
