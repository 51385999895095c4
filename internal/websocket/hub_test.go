package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/redacted/internal/privacy"
)

func allEvents() HubConfig {
	return HubConfig{
		BroadcastDetections:  true,
		BroadcastScans:       true,
		BroadcastSystem:      true,
		BroadcastConnections: true,
	}
}

func startHub(t *testing.T, cfg HubConfig) (*Hub, string) {
	t.Helper()
	hub := NewHub(cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event map[string]interface{}
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func waitForClients(t *testing.T, hub *Hub, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == n
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastDetection(t *testing.T) {
	hub, url := startHub(t, allEvents())
	conn := dial(t, url, nil)
	waitForClients(t, hub, 1)

	hub.PublishDetection(DetectionEvent{
		RequestID:     "req-1",
		Source:        "api",
		Findings:      []privacy.Finding{{EntityType: "Email", Masked: "[MASKED_EMAIL]", Count: 1, Unique: 1}},
		TotalFindings: 1,
	})

	event := readEvent(t, conn)
	assert.Equal(t, "detection", event["type"])
	assert.Equal(t, "req-1", event["request_id"])
	data := event["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["total_findings"])
}

func TestHub_DisabledEventTypeNotBroadcast(t *testing.T) {
	cfg := allEvents()
	cfg.BroadcastScans = false
	hub, url := startHub(t, cfg)
	conn := dial(t, url, nil)
	waitForClients(t, hub, 1)

	hub.PublishScanLog(ScanLogEvent{RequestID: "skip"})
	hub.PublishSystemStatus(SystemStatusEvent{Status: "ok"})

	event := readEvent(t, conn)
	assert.Equal(t, "system_status", event["type"])
}

func TestHub_SubscriptionFilters(t *testing.T) {
	hub, url := startHub(t, allEvents())
	conn := dial(t, url, nil)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", Events: []EventType{EventTypeScanLog}}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn)["type"])

	hub.PublishDetection(DetectionEvent{RequestID: "filtered"})
	hub.PublishScanLog(ScanLogEvent{RequestID: "wanted", StatusCode: 200})

	event := readEvent(t, conn)
	assert.Equal(t, "scan_log", event["type"])
	assert.Equal(t, "wanted", event["request_id"])
}

func TestHub_ConnectionEvents(t *testing.T) {
	hub, url := startHub(t, allEvents())
	first := dial(t, url, nil)
	waitForClients(t, hub, 1)

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	event := readEvent(t, first)
	assert.Equal(t, "connection", event["type"])
	assert.Equal(t, "connected", event["data"].(map[string]interface{})["action"])

	second.Close()
	event = readEvent(t, first)
	assert.Equal(t, "disconnected", event["data"].(map[string]interface{})["action"])
	waitForClients(t, hub, 1)
	assert.EqualValues(t, 2, hub.Stats().TotalConnections)
}

func TestHub_BasicAuth(t *testing.T) {
	cfg := allEvents()
	cfg.Username = "admin"
	cfg.Password = "secret"
	_, url := startHub(t, cfg)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, "http://x", nil)
	req.SetBasicAuth("admin", "wrong")
	_, resp, err = websocket.DefaultDialer.Dial(url, req.Header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "secret")
	dial(t, url, req.Header)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub := NewHub(allEvents(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	waitForClients(t, hub, 1)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	waitForClients(t, hub, 0)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.3")
	assert.Equal(t, "1.2.3.4", ClientIP(r))
}
