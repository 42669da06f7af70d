package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	h := New(opts, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func dial(t *testing.T, h *Hub, conversationID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Attach(ws, conversationID)
	}))
	t.Cleanup(server.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHubPublishToConversation(t *testing.T) {
	h := startHub(t, DefaultOptions())

	c1 := dial(t, h, "c1")
	c2 := dial(t, h, "c2")
	require.Eventually(t, func() bool { return h.HasSubscribers("c1") && h.HasSubscribers("c2") }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Publish("c1", map[string]string{"type": "run_status", "status": "in_progress"}))

	require.NoError(t, c1.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]string
	require.NoError(t, c1.ReadJSON(&got))
	assert.Equal(t, "in_progress", got["status"])

	require.NoError(t, c2.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := c2.ReadMessage()
	assert.Error(t, err, "other conversations receive nothing")
}

func TestHubUnregistersClosedClient(t *testing.T) {
	h := startHub(t, DefaultOptions())

	c := dial(t, h, "c1")
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.HasSubscribers("c1"))
}

func TestHubDropsSlowConsumer(t *testing.T) {
	h := startHub(t, DefaultOptions())

	conn := &Connection{ID: "slow", ConversationID: "c1", Send: make(chan []byte, 1)}
	h.Register(conn)
	require.Equal(t, 1, h.ConnectionCount())

	require.NoError(t, h.Publish("c1", "first"))
	require.NoError(t, h.Publish("c1", "second"))

	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
	msg, ok := <-conn.Send
	assert.True(t, ok)
	assert.Equal(t, `"first"`, string(msg))
	_, ok = <-conn.Send
	assert.False(t, ok, "send channel is closed on drop")
}

func TestHubStopped(t *testing.T) {
	h := New(DefaultOptions(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	conn := &Connection{ID: "a", ConversationID: "c1", Send: make(chan []byte, 1)}
	h.Register(conn)
	cancel()
	<-stopped

	_, ok := <-conn.Send
	assert.False(t, ok)

	// Neither call blocks after the loop has stopped.
	h.Unregister(conn)
	h.Register(&Connection{ID: "b", ConversationID: "c1", Send: make(chan []byte, 1)})
	assert.NoError(t, h.Publish("c1", "late"))
	assert.Zero(t, h.ConnectionCount())
}

func TestPublishRejectsUnencodable(t *testing.T) {
	h := startHub(t, DefaultOptions())
	assert.Error(t, h.Publish("c1", make(chan int)))
}
