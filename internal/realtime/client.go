package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024

	sendBufferSize = 256
)

// Client is one websocket subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	Send chan ServerMessage
	hub  *Hub
	log  *logrus.Entry

	filterMu sync.RWMutex
	filter   Filter

	sendMu sync.Mutex
	closed bool
}

// NewClient creates a client bound to hub. conn may be nil for clients that
// are fed directly through Send.
func NewClient(id string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		Send: make(chan ServerMessage, sendBufferSize),
		hub:  hub,
		log:  hub.log.WithField("client_id", id),
	}
}

// ReadPump handles subscription messages until the connection drops.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("unexpected close")
			}
			return
		}
		c.handle(msg)
	}
}

// WritePump forwards hub messages to the connection and keeps it alive.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.WithError(err).Debug("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues msg without blocking and reports whether it fit.
func (c *Client) TrySend(msg ServerMessage) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes Send once; later TrySend calls report false.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) SetFilter(f Filter) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.filter = f
}

func (c *Client) Filter() Filter {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter
}

// Wants reports whether u passes the client's filter.
func (c *Client) Wants(u Update) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter.accepts(u)
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.SetFilter(msg.Filter)
		c.log.WithFields(logrus.Fields{
			"matches": msg.Filter.Matches,
			"leagues": msg.Filter.Leagues,
		}).Debug("subscribed")
	case MessageTypeUnsubscribe:
		c.SetFilter(Filter{})
	case MessageTypeHeartbeat:
		c.TrySend(ServerMessage{Type: MessageTypeHeartbeat, Timestamp: time.Now()})
	default:
		c.TrySend(ServerMessage{
			Type:      MessageTypeError,
			Payload:   ErrorMessage{Code: "unknown_message_type", Message: "unknown message type: " + msg.Type},
			Timestamp: time.Now(),
		})
	}
}
