package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/progress"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	// replaySize is how many past events a new client receives.
	replaySize = 50
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts progress events to every connected websocket client.
// It implements progress.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	recent  [][]byte
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: map[*client]struct{}{}}
}

var _ progress.Publisher = (*Hub)(nil)

// Publish sends e to every client. Slow clients drop events rather than
// block the publisher.
func (h *Hub) Publish(e progress.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	msg, err := json.Marshal(e)
	if err != nil {
		logrus.WithError(err).Warn("dashboard: encoding event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.recent = append(h.recent, msg)
	if len(h.recent) > replaySize {
		h.recent = h.recent[len(h.recent)-replaySize:]
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logrus.Debug("dashboard: dropping event for slow client")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Recent returns the events kept for replay, oldest first.
func (h *Hub) Recent() []progress.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]progress.Event, 0, len(h.recent))
	for _, msg := range h.recent {
		var e progress.Event
		if json.Unmarshal(msg, &e) == nil {
			out = append(out, e)
		}
	}
	return out
}

// Close disconnects every client. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeWS upgrades the request and streams events until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("dashboard: websocket upgrade")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer+replaySize)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	for _, msg := range h.recent {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client messages and unregisters the client on close.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debug("dashboard: websocket read")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logrus.WithError(err).Debug("dashboard: websocket write")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
