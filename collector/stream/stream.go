package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// defaultWriteWait bounds a single client write. A dashboard tab that
// stops reading is dropped instead of parking every broadcaster behind
// its full socket buffer.
const defaultWriteWait = 5 * time.Second

// Manager fans status-change events out to connected dashboard clients.
type Manager struct {
	clients    map[*websocket.Conn]bool
	clientsMux sync.RWMutex
	writeWait  time.Duration
}

// NewManager creates an empty connection manager.
func NewManager() *Manager {
	return &Manager{
		clients:   make(map[*websocket.Conn]bool),
		writeWait: defaultWriteWait,
	}
}

// Message is the envelope sent over the websocket.
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from a different origin.
		return true
	},
}

// AddClient registers a connection.
func (m *Manager) AddClient(conn *websocket.Conn) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()
	m.clients[conn] = true
}

// RemoveClient drops a connection.
func (m *Manager) RemoveClient(conn *websocket.Conn) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()
	delete(m.clients, conn)
}

// Broadcast sends message to every connected client. Writes are bounded by
// a deadline; a client that fails or times out is dropped so that one
// stalled connection never blocks the callers feeding the stream. The
// write lock also serializes writers, which the connections require.
func (m *Manager) Broadcast(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	for client := range m.clients {
		client.SetWriteDeadline(time.Now().Add(m.writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(m.clients, client)
			client.Close()
		}
	}
}

// HandleWS upgrades the request and keeps the connection registered until
// the client goes away.
func (m *Manager) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	m.AddClient(conn)
	defer func() {
		m.RemoveClient(conn)
		conn.Close()
	}()

	// Reads are discarded; the feed is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
