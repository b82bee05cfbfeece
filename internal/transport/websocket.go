package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// WebSocket talks to the signaling server's /ws/call/{roomId} endpoint. The
// server stamps the sender and never echoes a message back to the
// connection that sent it.
type WebSocket struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer

	mu       sync.Mutex
	channels map[string]*wsChannel
}

// NewWebSocket returns a transport for the server at baseURL
// (ws:// or wss://), authenticating with token.
func NewWebSocket(baseURL, token string) *WebSocket {
	return &WebSocket{
		baseURL:  baseURL,
		token:    token,
		dialer:   websocket.DefaultDialer,
		channels: make(map[string]*wsChannel),
	}
}

func (w *WebSocket) Subscribe(ctx context.Context, roomID string) (Channel, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.channels[roomID]; ok {
		return c, nil
	}

	endpoint := w.baseURL + "/ws/call/" + url.PathEscape(roomID)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.token)

	conn, resp, err := w.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c := &wsChannel{
		roomID: roomID,
		owner:  w,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	w.channels[roomID] = c
	go c.writePump()
	go c.readPump()

	log.Debug().Str("module", "transport").Str("room", roomID).Msg("websocket channel open")
	return c, nil
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	channels := make([]*wsChannel, 0, len(w.channels))
	for _, c := range w.channels {
		channels = append(channels, c)
	}
	w.mu.Unlock()

	for _, c := range channels {
		_ = c.Unsubscribe()
	}
	return nil
}

func (w *WebSocket) forget(c *wsChannel) {
	w.mu.Lock()
	if w.channels[c.roomID] == c {
		delete(w.channels, c.roomID)
	}
	w.mu.Unlock()
}

type wsChannel struct {
	roomID string
	owner  *WebSocket
	conn   *websocket.Conn
	handlerSlot

	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsChannel) RoomID() string { return c.roomID }

func (c *wsChannel) Send(ctx context.Context, msg models.SignalMessage) error {
	data, err := models.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsChannel) readPump() {
	defer func() { _ = c.Unsubscribe() }()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "transport").Str("room", c.roomID).Msg("websocket read error")
			}
			return
		}

		msg, err := models.DecodeSignal(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "transport").Str("room", c.roomID).Msg("dropping message")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "transport").Str("room", c.roomID).Msg("websocket write error")
				_ = c.Unsubscribe()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Unsubscribe()
				return
			}
		}
	}
}

func (c *wsChannel) Unsubscribe() error {
	c.once.Do(func() {
		close(c.done)
		c.owner.forget(c)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
	return nil
}

// Room fetches the room's metadata from the server's REST API.
func (w *WebSocket) Room(ctx context.Context, roomID string) (models.RoomMetadata, error) {
	var room models.RoomMetadata

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return room, fmt.Errorf("parse server url: %w", err)
	}
	switch base.Scheme {
	case "ws":
		base.Scheme = "http"
	case "wss":
		base.Scheme = "https"
	}
	endpoint := base.JoinPath("api", "rooms", roomID).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return room, err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return room, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return room, fmt.Errorf("get %s: status %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return room, err
	}
	if err := models.Unmarshal(body, &room); err != nil {
		return room, fmt.Errorf("decode room: %w", err)
	}
	return room, nil
}
