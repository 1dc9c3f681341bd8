package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub fans committed match updates out to websocket subscribers. Updates
// are only ever produced after a successful commit, so clients never see
// state that was rolled back.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*Client]bool

	broadcast  chan Update
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	log *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Update, 1000),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.clientsMu.Unlock()
			h.log.WithField("client_id", c.ID).WithField("clients", n).Info("client connected")
		case c := <-h.unregister:
			h.remove(c)
		case u := <-h.broadcast:
			h.fanOut(u)
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues u for delivery. A full queue drops the update.
func (h *Hub) Broadcast(u Update) {
	select {
	case h.broadcast <- u:
	default:
		h.log.WithField("match_id", u.MatchID).Warn("broadcast buffer full, dropping update")
	}
}

func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.closeSend()
		h.log.WithField("client_id", c.ID).WithField("clients", len(h.clients)).Info("client disconnected")
	}
}

func (h *Hub) fanOut(u Update) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	msg := ServerMessage{Type: MessageTypeMatchUpdate, Payload: u, Timestamp: time.Now()}
	for _, c := range clients {
		if !c.Wants(u) {
			continue
		}
		if !c.TrySend(msg) {
			// too slow to keep up
			h.log.WithField("client_id", c.ID).Warn("client buffer full, disconnecting")
			h.remove(c)
		}
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.log.WithField("clients", len(h.clients)).Info("shutting down hub")
	for c := range h.clients {
		c.closeSend()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and attaches a new client to the hub. The
// pumps run on ctx rather than the request context.
func (h *Hub) ServeWS(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		c := NewClient(uuid.New().String(), conn, h)
		if f := r.URL.Query(); f.Get("match") != "" || f.Get("league") != "" {
			c.SetFilter(Filter{Matches: nonEmpty(f.Get("match")), Leagues: nonEmpty(f.Get("league"))})
		}
		h.Register(c)
		go c.WritePump(ctx)
		go c.ReadPump(ctx)
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
