package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := r.URL.Query().Get("workspace")
		if err := hub.Subscribe(w, r, ws); err != nil {
			t.Logf("subscribe failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, workspaceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?workspace=" + workspaceID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, workspaceID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(workspaceID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers for %s never reached %d (have %d)",
				workspaceID, want, hub.Subscribers(workspaceID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := hubServer(t, hub)

	conn := dial(t, srv, "ws-1")
	waitForSubscribers(t, hub, "ws-1", 1)

	hub.Publish("ws-1", map[string]any{"action": "discovery.create", "success": true})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "discovery.create", msg["action"])
	assert.Equal(t, true, msg["success"])
}

func TestHub_WorkspaceIsolation(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := hubServer(t, hub)

	connA := dial(t, srv, "ws-a")
	connB := dial(t, srv, "ws-b")
	waitForSubscribers(t, hub, "ws-a", 1)
	waitForSubscribers(t, hub, "ws-b", 1)

	hub.Publish("ws-a", map[string]any{"for": "a"})

	require.NoError(t, connA.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := connA.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"for":"a"`)

	// The other workspace's subscriber sees nothing.
	require.NoError(t, connB.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = connB.ReadMessage()
	assert.Error(t, err)
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := hubServer(t, hub)

	conns := []*websocket.Conn{
		dial(t, srv, "ws-1"),
		dial(t, srv, "ws-1"),
		dial(t, srv, "ws-1"),
	}
	waitForSubscribers(t, hub, "ws-1", 3)

	hub.Publish("ws-1", map[string]any{"n": 1})

	for i, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "subscriber %d", i)
		assert.JSONEq(t, `{"n":1}`, string(raw))
	}
}

func TestHub_DisconnectUnsubscribes(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := hubServer(t, hub)

	conn := dial(t, srv, "ws-1")
	waitForSubscribers(t, hub, "ws-1", 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, "ws-1", 0)
}

func TestHub_PublishToEmptyWorkspace(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)

	// Must not panic or block.
	hub.Publish("ws-nobody", map[string]any{"x": 1})
	assert.Zero(t, hub.Subscribers("ws-nobody"))
}

func TestHub_ConcurrentPublishDropsSlowSubscribers(t *testing.T) {
	hub := NewHub()

	// Subscribers whose buffers are never drained. Concurrent publishers
	// both see them as slow and race to drop them; channel close must have
	// a single owner or one of the sends lands on a closed channel.
	for i := 0; i < 8; i++ {
		hub.register("ws-1", &client{send: make(chan []byte)})
	}
	require.Equal(t, 8, hub.Subscribers("ws-1"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish("ws-1", map[string]any{"n": j})
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.Subscribers("ws-1"))
}

func TestHub_PublishRacesDisconnect(t *testing.T) {
	hub := NewHub()

	clients := make([]*client, 16)
	for i := range clients {
		clients[i] = &client{send: make(chan []byte, 1)}
		hub.register("ws-1", clients[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hub.Publish("ws-1", map[string]any{"n": i})
		}
	}()
	go func() {
		defer wg.Done()
		for _, c := range clients {
			hub.unsubscribe("ws-1", c)
		}
	}()
	wg.Wait()

	assert.Zero(t, hub.Subscribers("ws-1"))
}

func TestHub_CloseDisconnectsAll(t *testing.T) {
	hub := NewHub()
	srv := hubServer(t, hub)

	conn := dial(t, srv, "ws-1")
	waitForSubscribers(t, hub, "ws-1", 1)

	hub.Close()
	assert.Zero(t, hub.Subscribers("ws-1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
