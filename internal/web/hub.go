package web

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/lora-logger/internal/logic"
	"github.com/sweeney/lora-logger/internal/store"
)

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	// The logger is reached directly on its own access point.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub streams each appended log row to connected websocket clients.
// A slow client loses rows rather than holding up the logger.
type Hub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

type liveClient struct {
	conn *websocket.Conn
	send chan string
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*liveClient]struct{})}
}

// Publish queues the record's CSV row for every client. It never blocks.
func (h *Hub) Publish(rec logic.Record) error {
	line := store.FormatRecord(rec)

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- line:
		default:
			log.Printf("live: client %s too slow, dropping row", c.conn.RemoteAddr())
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams rows until the client leaves.
// The CSV header is sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: websocket upgrade error: %v", err)
		return
	}

	c := &liveClient{conn: conn, send: make(chan string, clientQueue)}
	c.send <- store.Header
	if !h.add(c) {
		conn.Close()
		return
	}

	go c.writeLoop()
	c.readLoop()
	h.remove(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

// readLoop discards client messages and returns when the connection closes.
func (c *liveClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("live: websocket error: %v", err)
			}
			return
		}
	}
}

func (c *liveClient) writeLoop() {
	defer c.conn.Close()
	for line := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
