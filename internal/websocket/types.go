package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/redacted/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDetection is sent when a redaction found sensitive values
	EventTypeDetection EventType = "detection"
	// EventTypeScanLog is sent for every scan or redaction request
	EventTypeScanLog EventType = "scan_log"
	// EventTypeSystemStatus carries periodic status information
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent describes what a redaction found. It never carries the
// matched values.
type DetectionEvent struct {
	RequestID     string            `json:"request_id"`
	Source        string            `json:"source"`
	ClientIP      string            `json:"client_ip,omitempty"`
	Findings      []privacy.Finding `json:"findings"`
	TotalFindings int               `json:"total_findings"`
	ProcessingMS  float64           `json:"processing_ms"`
}

// ScanLogEvent represents a request logging event
type ScanLogEvent struct {
	RequestID  string        `json:"request_id"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	StatusCode int           `json:"status_code"`
	ClientIP   string        `json:"client_ip"`
	Duration   time.Duration `json:"duration"`
	TextBytes  int           `json:"text_bytes"`
	CacheHit   bool          `json:"cache_hit"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	TotalRequests    int64    `json:"total_requests"`
	TotalDetections  int64    `json:"total_detections"`
	EnabledInfoTypes []string `json:"enabled_info_types"`
	ConnectedClients int      `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	IP          string
	UserAgent   string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan Event

	mu            sync.RWMutex
	subscriptions map[EventType]bool // nil means everything
}

// subscribe replaces the client's event filter. An empty list restores
// delivery of every event.
func (c *Client) subscribe(events []EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(events) == 0 {
		c.subscriptions = nil
		return
	}

	c.subscriptions = make(map[EventType]bool, len(events))
	for _, e := range events {
		c.subscriptions[e] = true
	}
}

// wants reports whether the client subscribed to the event type
func (c *Client) wants(t EventType) bool {
	if t == EventTypePong {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions == nil || c.subscriptions[t]
}
