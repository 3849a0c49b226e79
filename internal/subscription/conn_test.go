package subscription

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestRegistry spins up a real WebSocket server over the registry and
// returns a connected client.
func dialTestRegistry(t *testing.T, r *Registry) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = r.ServeWS(w, req)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) ServerFrame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var frame ServerFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestServe_ConnectSubscribePublish(t *testing.T) {
	r := NewRegistry()
	ws := dialTestRegistry(t, r)

	greeting := readFrame(t, ws)
	assert.Equal(t, TypeConnected, greeting.Type)
	data, ok := greeting.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["id"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe","topics":["memory:*"]}`)))
	ack := readFrame(t, ws)
	assert.Equal(t, TypeSubscribed, ack.Type)

	// The subscription is now indexed; publish and expect exactly one event.
	require.Eventually(t, func() bool { return r.SubscriberCount(TopicMemoryCreated) == 1 },
		time.Second, 10*time.Millisecond)
	r.Publish(TopicMemoryCreated, map[string]interface{}{"id": "M"})

	event := readFrame(t, ws)
	assert.Equal(t, TypeEvent, event.Type)
	assert.Equal(t, TopicMemoryCreated, event.Topic)

	// A non-matching topic produces nothing.
	r.Publish(TopicProfileUpdated, nil)
	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "no frame expected for a non-matching topic")
}

func TestServe_DisconnectRemovesConnection(t *testing.T) {
	r := NewRegistry()
	ws := dialTestRegistry(t, r)
	readFrame(t, ws) // greeting

	require.Eventually(t, func() bool { return r.ConnectionCount() == 1 },
		time.Second, 10*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return r.ConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
