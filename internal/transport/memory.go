package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

const memoryInboxSize = 256

// Hub is an in-process broadcast bus. Every Transport created from the same
// hub sees the others' messages, which makes it a loopback signaling layer
// for tests and single-process setups.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*memoryChannel
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*memoryChannel)}
}

// Transport returns a new client attached to the hub.
func (h *Hub) Transport() *Memory {
	return &Memory{hub: h, channels: make(map[string]*memoryChannel)}
}

func (h *Hub) join(c *memoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.rooms[c.roomID]
	if !ok {
		peers = make(map[string]*memoryChannel)
		h.rooms[c.roomID] = peers
	}
	peers[c.id] = c
}

func (h *Hub) leave(c *memoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.rooms[c.roomID]
	delete(peers, c.id)
	if len(peers) == 0 {
		delete(h.rooms, c.roomID)
	}
}

func (h *Hub) broadcast(from *memoryChannel, msg models.SignalMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[from.roomID] {
		if id == from.id {
			continue
		}
		c.enqueue(msg)
	}
}

// Memory is a Transport backed by a Hub.
type Memory struct {
	hub *Hub

	mu       sync.Mutex
	channels map[string]*memoryChannel
}

func (m *Memory) Subscribe(_ context.Context, roomID string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.channels[roomID]; ok {
		return c, nil
	}

	c := &memoryChannel{
		id:     uuid.NewString(),
		roomID: roomID,
		owner:  m,
		inbox:  make(chan models.SignalMessage, memoryInboxSize),
		done:   make(chan struct{}),
	}
	m.channels[roomID] = c
	m.hub.join(c)
	go c.deliver()
	return c, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	channels := make([]*memoryChannel, 0, len(m.channels))
	for _, c := range m.channels {
		channels = append(channels, c)
	}
	m.mu.Unlock()

	for _, c := range channels {
		_ = c.Unsubscribe()
	}
	return nil
}

func (m *Memory) forget(c *memoryChannel) {
	m.mu.Lock()
	if m.channels[c.roomID] == c {
		delete(m.channels, c.roomID)
	}
	m.mu.Unlock()
}

type memoryChannel struct {
	id     string
	roomID string
	owner  *Memory
	handlerSlot

	inbox chan models.SignalMessage
	done  chan struct{}
	once  sync.Once
}

func (c *memoryChannel) RoomID() string { return c.roomID }

func (c *memoryChannel) Send(ctx context.Context, msg models.SignalMessage) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg.RoomID = c.roomID
	c.owner.hub.broadcast(c, msg)
	return nil
}

func (c *memoryChannel) enqueue(msg models.SignalMessage) {
	select {
	case <-c.done:
	case c.inbox <- msg:
	default:
		log.Warn().Str("module", "transport").Str("room", c.roomID).Msg("memory inbox full, dropping message")
	}
}

func (c *memoryChannel) deliver() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.inbox:
			c.dispatch(msg)
		}
	}
}

func (c *memoryChannel) Unsubscribe() error {
	c.once.Do(func() {
		close(c.done)
		c.owner.hub.leave(c)
		c.owner.forget(c)
	})
	return nil
}

// handlerSlot holds the OnMessage handler of a channel.
type handlerSlot struct {
	hmu     sync.RWMutex
	handler Handler
}

func (s *handlerSlot) OnMessage(h Handler) {
	s.hmu.Lock()
	s.handler = h
	s.hmu.Unlock()
}

func (s *handlerSlot) dispatch(msg models.SignalMessage) {
	s.hmu.RLock()
	h := s.handler
	s.hmu.RUnlock()
	if h != nil {
		h(msg)
	}
}
