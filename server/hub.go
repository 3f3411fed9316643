package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string           `json:"event"`
	Data  SnapshotResponse `json:"data"`
}

// Hub streams snapshots to websocket clients. On every tick it sends the
// latest snapshot to all clients, unless nothing was published since the
// last one.
type Hub struct {
	ctrl     Controller
	interval time.Duration
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	lastSeq uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub reading snapshots from ctrl every interval.
func NewHub(ctrl Controller, interval time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		ctrl:     ctrl,
		interval: interval,
		log:      logger,
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts until ctx is cancelled, then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection, sends the latest snapshot and then
// keeps the client registered for broadcasts until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	// queued before register, while only this goroutine can see send.
	if data, _, err := h.buildMessage(); err == nil {
		c.send <- data
	}

	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast() {
	data, seq, err := h.buildMessage()
	if err != nil {
		h.log.Warn("[hub] failed to encode snapshot", zap.Error(err))
		return
	}

	// send under the lock so unregister cannot close a channel mid-send.
	h.mu.Lock()
	defer h.mu.Unlock()

	if seq == h.lastSeq {
		return
	}
	h.lastSeq = seq

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("[hub] dropping slow client", zap.String("remote", remoteAddr(c)))
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func remoteAddr(c *client) string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

func (h *Hub) buildMessage() ([]byte, uint64, error) {
	s := h.ctrl.Snapshot()

	data, err := json.Marshal(Message{
		Event: "snapshot",
		Data:  BuildSnapshot(s, false),
	})

	return data, s.Seq, err
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump forwards queued messages and sends pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and notices disconnects.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
