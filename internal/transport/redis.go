package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

// Redis broadcasts through Redis PUBLISH/SUBSCRIBE on call-{roomId}. It is
// used by clients that sit next to Redis and by the signaling server to fan
// messages out between instances.
type Redis struct {
	client *redis.Client

	mu       sync.Mutex
	channels map[string]*redisChannel
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, channels: make(map[string]*redisChannel)}
}

func (r *Redis) Subscribe(ctx context.Context, roomID string) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.channels[roomID]; ok {
		return c, nil
	}

	name := ChannelName(roomID)
	ps := r.client.Subscribe(ctx, name)
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	c := &redisChannel{
		id:     uuid.NewString(),
		roomID: roomID,
		name:   name,
		owner:  r,
		ps:     ps,
		done:   make(chan struct{}),
	}
	r.channels[roomID] = c
	go c.listen()

	log.Debug().Str("module", "transport").Str("channel", name).Msg("redis channel subscribed")
	return c, nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	channels := make([]*redisChannel, 0, len(r.channels))
	for _, c := range r.channels {
		channels = append(channels, c)
	}
	r.mu.Unlock()

	var firstErr error
	for _, c := range channels {
		if err := c.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Redis) forget(c *redisChannel) {
	r.mu.Lock()
	if r.channels[c.roomID] == c {
		delete(r.channels, c.roomID)
	}
	r.mu.Unlock()
}

type redisChannel struct {
	id     string
	roomID string
	name   string
	owner  *Redis
	ps     *redis.PubSub
	handlerSlot

	done     chan struct{}
	once     sync.Once
	closeErr error
}

func (c *redisChannel) RoomID() string { return c.roomID }

func (c *redisChannel) Send(ctx context.Context, msg models.SignalMessage) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	msg.RoomID = c.roomID
	data, err := models.Marshal(envelope{Origin: c.id, Message: msg})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.owner.client.Publish(ctx, c.name, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", c.name, err)
	}
	return nil
}

func (c *redisChannel) listen() {
	for m := range c.ps.Channel() {
		var env envelope
		if err := models.Unmarshal([]byte(m.Payload), &env); err != nil {
			log.Warn().Err(err).Str("module", "transport").Str("channel", c.name).Msg("dropping malformed envelope")
			continue
		}
		if env.Origin == c.id {
			continue
		}
		c.dispatch(env.Message)
	}
}

func (c *redisChannel) Unsubscribe() error {
	c.once.Do(func() {
		close(c.done)
		c.owner.forget(c)
		c.closeErr = c.ps.Close()
	})
	return c.closeErr
}
