package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/apperr"
	"github.com/matheus3301/chatd/internal/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live WebSocket connection of an authenticated user.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	logger *zap.Logger

	// Buffered channel of outbound frames. Never closed; done signals
	// shutdown instead so late senders cannot panic.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// registered is only touched by the read pump.
	registered bool
}

func newClient(id, userID string, conn *websocket.Conn, buffer int, logger *zap.Logger) *Client {
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		logger: logger.With(zap.String("user_id", userID), zap.String("conn_id", id)),
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send enqueues evt without blocking. A client whose buffer is full is
// too slow to keep up and gets closed.
func (c *Client) Send(evt event.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error("encode event failed", zap.String("event", evt.Name), zap.Error(err))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("send buffer full, closing connection", zap.String("event", evt.Name))
		c.Close()
		return false
	}
}

// Close stops the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump pumps frames from the send buffer to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump reads inbound envelopes and hands each to handle, in order.
func (c *Client) readPump(maxMessageBytes int64, handle func(event.Inbound)) {
	defer func() {
		c.Close()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Info("connection read error", zap.Error(err))
			}
			return
		}
		var in event.Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Name == "" {
			c.Send(event.Errorf("", apperr.CodeInvalid, "malformed event"))
			continue
		}
		handle(in)
	}
}
