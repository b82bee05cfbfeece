package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/middleware"
	"github.com/mossy-p/webrtc-signaling/internal/models"
	"github.com/mossy-p/webrtc-signaling/internal/store"
	"github.com/mossy-p/webrtc-signaling/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
	relayTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Room holds the local connections of one call room.
type Room struct {
	ID    string
	Peers map[string]*Client
	relay transport.Channel
}

// Client represents a WebSocket client connection
type Client struct {
	ID     string
	RoomID string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub tracks the connections held by this instance. When a relay transport is
// set, every room is also bridged to it so that participants connected to
// different instances reach each other.
type Hub struct {
	relay transport.Transport

	// openMu serializes joins so a room is opened at most once; mu guards
	// rooms.
	openMu sync.Mutex
	mu     sync.RWMutex
	rooms  map[string]*Room
}

// NewHub creates a hub. relay may be nil for a single instance deployment.
func NewHub(relay transport.Transport) *Hub {
	return &Hub{relay: relay, rooms: make(map[string]*Room)}
}

// join adds client to its room. The first local client of a room opens the
// relay subscription; that round trip runs outside mu so broadcasts and
// leaves on other rooms are not held up by Redis.
func (h *Hub) join(ctx context.Context, client *Client) error {
	h.openMu.Lock()
	defer h.openMu.Unlock()

	h.mu.Lock()
	if room, ok := h.rooms[client.RoomID]; ok {
		room.Peers[client.ID] = client
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	var relay transport.Channel
	if h.relay != nil {
		ch, err := h.relay.Subscribe(ctx, client.RoomID)
		if err != nil {
			return err
		}
		relay = ch
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[client.RoomID]
	if !exists {
		room = &Room{ID: client.RoomID, Peers: make(map[string]*Client), relay: relay}
		if relay != nil {
			roomID := client.RoomID
			relay.OnMessage(func(msg models.SignalMessage) {
				h.deliverRelayed(roomID, msg)
			})
		}
		h.rooms[client.RoomID] = room
		log.Debug().Str("module", "signaling").Str("room", room.ID).Msg("room opened on this instance")
	}
	room.Peers[client.ID] = client
	return nil
}

// leave removes client and closes its send queue. Safe to call for a client
// that closeRoom already removed.
func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}
	if _, ok := room.Peers[client.ID]; !ok {
		return
	}
	delete(room.Peers, client.ID)
	close(client.Send)

	// The relay goes with the room so a rejoin subscribes afresh.
	if len(room.Peers) == 0 {
		delete(h.rooms, room.ID)
		if room.relay != nil {
			_ = room.relay.Unsubscribe()
		}
		log.Debug().Str("module", "signaling").Str("room", room.ID).Msg("room closed on this instance")
	}
}

// closeRoom disconnects every local client of roomID.
func (h *Hub) closeRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for id, client := range room.Peers {
		delete(room.Peers, id)
		close(client.Send)
	}
	delete(h.rooms, roomID)
	if room.relay != nil {
		_ = room.relay.Unsubscribe()
	}
}

// connections reports how many clients of roomID are attached here.
func (h *Hub) connections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[roomID]; ok {
		return len(room.Peers)
	}
	return 0
}

func (h *Hub) broadcast(roomID string, data []byte, excludeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for peerID, client := range room.Peers {
		if peerID == excludeID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Warn().Str("module", "signaling").Str("peer", peerID).Msg("send buffer full, dropping message")
		}
	}
}

func (h *Hub) deliverRelayed(roomID string, msg models.SignalMessage) {
	data, err := models.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signaling").Msg("failed to encode relayed message")
		return
	}
	h.broadcast(roomID, data, "")
}

func (h *Hub) publish(roomID string, msg models.SignalMessage) {
	h.mu.RLock()
	room, ok := h.rooms[roomID]
	var relay transport.Channel
	if ok {
		relay = room.relay
	}
	h.mu.RUnlock()
	if relay == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := relay.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("room", roomID).Msg("failed to relay message")
	}
}

// HandleCall upgrades a participant's connection and joins it to the room's
// signaling channel.
func (h *Handler) HandleCall(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := middleware.UserID(c)

	room, err := h.rooms.Get(c.Request.Context(), roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("room", roomID).Msg("failed to load room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
		return
	}
	if !room.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this room"})
		return
	}

	connID := uuid.NewString()
	if err := h.rooms.AddConnection(c.Request.Context(), roomID, connID, h.maxConnections); err != nil {
		if errors.Is(err, store.ErrRoomFull) {
			if err != store.ErrRoomFull {
				log.Error().Err(err).Str("module", "signaling").Str("room", roomID).Msg("rejected connection still counted")
			}
			c.JSON(http.StatusConflict, gin.H{"error": "Room is full"})
			return
		}
		log.Error().Err(err).Str("module", "signaling").Str("room", roomID).Msg("failed to register connection")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "signaling").Msg("failed to upgrade connection")
		_ = h.rooms.RemoveConnection(context.Background(), roomID, connID)
		return
	}

	client := &Client{
		ID:     connID,
		RoomID: roomID,
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	err = h.hub.join(ctx, client)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("room", roomID).Msg("failed to open relay")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "relay unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		_ = h.rooms.RemoveConnection(context.Background(), roomID, connID)
		return
	}

	log.Info().Str("module", "signaling").Str("room", roomID).Str("user", userID).Str("conn", connID).
		Int("local", h.hub.connections(roomID)).Msg("participant joined")

	go client.writePump()
	go h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.leave(c)
		c.Conn.Close()
		_ = h.rooms.RemoveConnection(context.Background(), c.RoomID, c.ID)
		log.Info().Str("module", "signaling").Str("room", c.RoomID).Str("user", c.UserID).Msg("participant left")
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("module", "signaling").Msg("websocket error")
			}
			return
		}

		msg, err := models.DecodeSignal(message)
		if err != nil {
			log.Warn().Err(err).Str("module", "signaling").Str("conn", c.ID).Msg("dropping message")
			continue
		}

		// The server is the authority on who sent what.
		msg.SenderID = c.UserID
		msg.RoomID = c.RoomID

		data, err := models.Encode(msg)
		if err != nil {
			log.Error().Err(err).Str("module", "signaling").Msg("failed to encode message")
			continue
		}
		h.hub.broadcast(c.RoomID, data, c.ID)
		h.hub.publish(c.RoomID, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("module", "signaling").Str("conn", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
