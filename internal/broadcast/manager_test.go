package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func newTestServer(t *testing.T, m *Manager, id string) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		c := m.Register(id, conn)
		c.Bind(r.URL.Query().Get("session"))
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/?session=sess-1"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return server, client
}

func TestManager_BroadcastToSessionReachesBoundConnection(t *testing.T) {
	m := NewManager(nil)
	_, client := newTestServer(t, m, "conn-1")

	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 10*time.Millisecond)

	m.BroadcastToSession("sess-1", "turn.end", map[string]string{"status": "ok"})

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "turn.end")
	require.Contains(t, string(data), "\"status\":\"ok\"")
}

func TestManager_BroadcastToSessionSkipsOtherSessions(t *testing.T) {
	m := NewManager(nil)
	_, client := newTestServer(t, m, "conn-1")

	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 10*time.Millisecond)

	m.BroadcastToSession("sess-other", "turn.end", nil)

	_ = client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
}

func TestManager_UnregisterStopsDelivery(t *testing.T) {
	m := NewManager(nil)
	newTestServer(t, m, "conn-1")

	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 10*time.Millisecond)

	m.Unregister("conn-1")
	require.Equal(t, 0, m.Count())
}

func TestManager_BroadcastAllReachesEveryConnection(t *testing.T) {
	m := NewManager(nil)
	_, clientA := newTestServer(t, m, "conn-a")
	_, clientB := newTestServer(t, m, "conn-b")

	require.Eventually(t, func() bool { return m.Count() == 2 }, time.Second, 10*time.Millisecond)

	m.BroadcastAll("server.shutdown", nil)

	for _, c := range []*websocket.Conn{clientA, clientB} {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		require.Contains(t, string(data), "server.shutdown")
	}
}
