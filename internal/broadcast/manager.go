// Package broadcast fans event-store events out to connected WebSocket
// clients (spec §4.K): a registry of live connections, each optionally
// bound to one session, with broadcast-to-session and broadcast-all
// delivery. Grounded on the teacher's internal/gateway/ws_control_plane.go
// per-connection send-channel/writeLoop shape.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Connection is one registered WebSocket client. SessionID is empty for a
// connection not yet bound to a session (e.g. before its first connect
// frame); Bind sets it once known.
type Connection struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu        sync.RWMutex
	sessionID string
}

func newConnection(id string, conn *websocket.Conn) *Connection {
	return &Connection{id: id, conn: conn, send: make(chan []byte, sendBufferSize)}
}

// ID returns the connection's registry key.
func (c *Connection) ID() string { return c.id }

// Bind associates this connection with a session, so future
// BroadcastToSession calls reach it.
func (c *Connection) Bind(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

func (c *Connection) boundTo(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID == sessionID
}

// SendRaw enqueues data for delivery on this connection's single writer
// goroutine, bypassing the broadcast envelope. Used by the gateway's
// request/response dispatch to reply to one connection directly rather
// than fanning out to every connection bound to a session. Returns false
// if the connection's send buffer is full; the caller decides how to
// treat that (a dropped RPC reply, unlike a dropped broadcast, usually
// warrants closing the connection).
func (c *Connection) SendRaw(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writeLoop drains the connection's send channel onto the underlying
// socket until it closes or a write fails. It is started by Manager.Register
// and is the connection's only writer, per gorilla/websocket's single-writer
// requirement.
func (c *Connection) writeLoop(logger *slog.Logger) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Warn("broadcast write failed, dropping connection", "connection", c.id, "error", err)
			return
		}
	}
}

// Manager is the process-wide connection registry.
type Manager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewManager returns an empty registry. logger defaults to slog's default
// handler if nil.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, connections: make(map[string]*Connection)}
}

// Register adds a connection under id and starts its write loop. The
// returned Connection is used to Bind it to a session once the handshake
// completes.
func (m *Manager) Register(id string, conn *websocket.Conn) *Connection {
	c := newConnection(id, conn)

	m.mu.Lock()
	m.connections[id] = c
	m.mu.Unlock()

	go c.writeLoop(m.logger)
	return c
}

// Unregister removes a connection and closes its send channel, ending its
// write loop.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	c, ok := m.connections[id]
	if ok {
		delete(m.connections, id)
	}
	m.mu.Unlock()

	if ok {
		close(c.send)
	}
}

// Count reports the number of registered connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// BroadcastToSession delivers payload, marshaled as a JSON envelope, to
// every connection currently bound to sessionID. Marshal and per-connection
// send failures are logged and the affected connection is skipped, not
// treated as a fatal error for the broadcast as a whole.
func (m *Manager) BroadcastToSession(sessionID, event string, payload any) {
	m.deliver(event, payload, func(c *Connection) bool {
		return c.boundTo(sessionID)
	})
}

// BroadcastAll delivers payload to every registered connection regardless
// of session binding, used for process-wide notices (e.g. a server
// shutdown warning).
func (m *Manager) BroadcastAll(event string, payload any) {
	m.deliver(event, payload, func(*Connection) bool { return true })
}

func (m *Manager) deliver(event string, payload any, match func(*Connection) bool) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		m.logger.Error("broadcast encode failed", "event", event, "error", err)
		return
	}

	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		if match(c) {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			m.logger.Warn("broadcast send buffer full, dropping message", "connection", c.id, "event", event)
		}
	}
}

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}
