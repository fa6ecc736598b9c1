package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamServer(t *testing.T) (*Manager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewManager()
	router := gin.New()
	router.GET("/api/stream", m.HandleWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return m, "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stream"
}

func (m *Manager) clientCount() int {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	return len(m.clients)
}

func TestBroadcastDeliversToClient(t *testing.T) {
	m, url := newStreamServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return m.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	m.Broadcast(Message{Type: "pc_status", Timestamp: time.Now(), Data: map[string]string{"pcId": "PC-1"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "PC-1")
}

func TestBroadcastDropsStalledClient(t *testing.T) {
	m, url := newStreamServer(t)
	m.writeWait = 50 * time.Millisecond

	// This client never reads. Once the socket buffers fill, writes to it
	// must hit the deadline and drop the client; broadcasters must never
	// block indefinitely behind it.
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return m.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	payload := strings.Repeat("x", 256<<10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64 && m.clientCount() > 0; i++ {
			m.Broadcast(Message{Type: "pc_status", Timestamp: time.Now(), Data: payload})
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("broadcast blocked on a client that stopped reading")
	}
	assert.Zero(t, m.clientCount(), "stalled client must be dropped")
}

func TestBroadcastAfterClientGone(t *testing.T) {
	m, url := newStreamServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return m.clientCount() == 0 }, time.Second, 10*time.Millisecond)

	// Must be a no-op, not a panic or a hang.
	m.Broadcast(Message{Type: "pc_status", Timestamp: time.Now()})
}
