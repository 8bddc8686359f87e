package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegisher/api/internal/model"
)

func startHub(t *testing.T) (*WSHub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewWSHub(nil, nil, nil)
	go hub.Run()

	r := gin.New()
	h := NewWSHandler(hub)
	r.GET("/ws/sos", h.HandleSOS)
	r.GET("/ws/stats", h.GetStats)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "connected", welcome["type"])
	assert.NotEmpty(t, welcome["client_id"])
	return conn
}

func readSOS(t *testing.T, conn *websocket.Conn) model.WSSOSMessage {
	t.Helper()
	var msg model.WSSOSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sosFor(id, userID string) *model.WSSOSMessage {
	return &model.WSSOSMessage{
		Type: "SOS_TRIGGERED",
		Data: model.SOSAlert{ID: id, UserID: &userID, Status: model.SOSStatusActive},
	}
}

func TestHubBroadcastsToInterestedClients(t *testing.T) {
	hub, url := startHub(t)

	everyone := dial(t, url+"/ws/sos")
	following := dial(t, url+"/ws/sos?user_id=u1")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.BroadcastSOS(sosFor("a1", "u2")))
	require.NoError(t, hub.BroadcastSOS(sosFor("a2", "u1")))

	assert.Equal(t, "a1", readSOS(t, everyone).Data.ID)
	assert.Equal(t, "a2", readSOS(t, everyone).Data.ID)

	// the filtered client never sees u2's alert
	msg := readSOS(t, following)
	assert.Equal(t, "a2", msg.Data.ID)
	assert.Equal(t, "SOS_TRIGGERED", msg.Type)
}

func TestClientSubscribeAndPing(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url+"/ws/sos")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping"}))
	var pong map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "subscribe",
		"data": map[string]string{"userId": "u9"},
	}))
	// the ping round trip orders the subscribe before the broadcasts
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping"}))
	require.NoError(t, conn.ReadJSON(&pong))

	require.NoError(t, hub.BroadcastSOS(sosFor("skip", "u1")))
	require.NoError(t, hub.BroadcastSOS(sosFor("keep", "u9")))
	assert.Equal(t, "keep", readSOS(t, conn).Data.ID)
}

func TestHubStats(t *testing.T) {
	hub, url := startHub(t)
	dial(t, url+"/ws/sos")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http" + strings.TrimPrefix(url, "ws") + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body["connected_clients"])
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"/ws/sos")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Stop()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDroppedClientIgnoresPing(t *testing.T) {
	hub := NewWSHub(nil, nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	// a stuck writer: tiny buffer and nothing draining it
	client := &Client{ID: "slow", Send: make(chan []byte, 1), Hub: hub}
	hub.register <- client
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.BroadcastSOS(sosFor("a", "u1")))
	}
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	assert.NotPanics(t, func() {
		client.handle([]byte(`{"type":"ping"}`))
		client.handle([]byte(`{"type":"ping"}`))
	})
	assert.False(t, client.trySend([]byte("late")))

	// the buffered alert is still readable, then the channel reports closed
	<-client.Send
	_, ok := <-client.Send
	assert.False(t, ok)
}
