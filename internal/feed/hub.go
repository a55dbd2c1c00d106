package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trevnoctilla/toolprobe/internal/tracker"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many frames a client may fall behind before it is dropped
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame pushed to feed clients
type Message struct {
	Type string        `json:"type"`
	Run  probe.TestRun `json:"run"`
}

const (
	TypeSnapshot = "snapshot"
	TypeUpdate   = "update"
)

// client owns one connection. Frames are queued on send and written by
// writePump only, in the order they were queued.
type client struct {
	conn *websocket.Conn
	send chan Message
	done chan struct{}
}

func (c *client) enqueue(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub holds the latest run per tool and pushes every update to websocket clients
type Hub struct {
	runs    tracker.RunTracker
	clients map[*client]bool
	mu      sync.RWMutex
	log     *logger.Logger
}

// NewHub creates a hub over runs
func NewHub(runs tracker.RunTracker) *Hub {
	return &Hub{
		runs:    runs,
		clients: make(map[*client]bool),
		log:     logger.New().With("component", "feed"),
	}
}

// Publish stores run as its tool's latest snapshot and broadcasts it
func (h *Hub) Publish(run probe.TestRun) {
	if !h.runs.Update(run) {
		return
	}
	h.broadcast(Message{Type: TypeUpdate, Run: run})
}

// Latest returns the tool's most recent run
func (h *Hub) Latest(toolID string) (probe.TestRun, bool) {
	return h.runs.Latest(toolID)
}

// All returns the most recent run of every tool
func (h *Hub) All() []probe.TestRun {
	return h.runs.All()
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast queues msg for every client without waiting on the network. A
// client whose queue is full is dropped.
func (h *Hub) broadcast(msg Message) {
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("Dropping feed client that fell %d frames behind", sendBuffer)
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and streams snapshots until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade feed connection: %v", err)
		return
	}

	// Snapshots are queued and the client registered under one lock, so every
	// update broadcast afterwards is queued behind them.
	h.mu.Lock()
	runs := h.runs.All()
	c := &client{
		conn: conn,
		send: make(chan Message, len(runs)+sendBuffer),
		done: make(chan struct{}),
	}
	for _, run := range runs {
		c.send <- Message{Type: TypeSnapshot, Run: run}
	}
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("Feed client connected (%d total)", total)

	go h.writePump(c)

	// the feed is one-way; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.Debug("Dropping feed client: %v", err)
				h.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	if ok {
		close(c.done)
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// Encode renders msg as JSON for non-websocket consumers
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
