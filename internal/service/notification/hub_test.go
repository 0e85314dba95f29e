package notification

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(userID, conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// 等服务端把连接挂上 Hub
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients[userID]) == 1
	}, time.Second, 10*time.Millisecond)
	return conn
}

// 两个消费循环可能同时向同一用户推送，连接上的写必须串行。
func TestHubConcurrentPush(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1")

	const pushes = 32
	var wg sync.WaitGroup
	for i := 0; i < pushes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Push("user-1", Notification{Type: "ORDER_CREATED", OrderNumber: "SE-TEST"})
		}()
	}
	wg.Wait()

	for i := 0; i < pushes; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got Notification
		require.NoError(t, conn.ReadJSON(&got))
		require.Equal(t, "ORDER_CREATED", got.Type)
	}
}

func TestHubPushToUnknownUserIsNoop(t *testing.T) {
	hub := NewHub()
	// 没有连接时推送静默丢弃
	hub.Push("nobody", Notification{Type: "ORDER_CREATED"})
}

func TestHubUnregisterRemovesConnection(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1")

	hub.mu.RLock()
	var registered *websocket.Conn
	for c := range hub.clients["user-1"] {
		registered = c
	}
	hub.mu.RUnlock()
	require.NotNil(t, registered)

	hub.Unregister("user-1", registered)

	hub.mu.RLock()
	_, ok := hub.clients["user-1"]
	hub.mu.RUnlock()
	require.False(t, ok)
	_ = conn.Close()
}
