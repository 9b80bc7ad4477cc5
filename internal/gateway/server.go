// Package gateway exposes the runtime over a WebSocket JSON-RPC-dialect
// control channel plus a small set of plain HTTP endpoints (health check,
// Prometheus scrape). One connection may drive many sessions; one session
// may be watched by many connections. Grounded on the teacher's
// internal/gateway/ws_control_plane.go and http_server.go for the
// upgrade/dispatch/writeLoop shape, trimmed to this runtime's method
// surface and wired to this runtime's session/turn/store stack instead of
// the teacher's channel-bot and gRPC control plane.
package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftcode/agentcore/internal/auth"
	"github.com/driftcode/agentcore/internal/broadcast"
	"github.com/driftcode/agentcore/internal/observability"
	"github.com/driftcode/agentcore/internal/session"
	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/internal/tools"
	"github.com/driftcode/agentcore/internal/turn"
)

const (
	readLimitBytes = 1 << 20
	pongWait       = 45 * time.Second
	pingInterval   = 20 * time.Second
)

// Server is the gateway's process-wide state: everything a connection's
// request dispatch needs to reach the rest of the runtime.
type Server struct {
	logger       *slog.Logger
	auth         *auth.Service
	orchestrator *session.Orchestrator
	runner       *turn.Runner
	store        store.Store
	broadcast    *broadcast.Manager
	tools        *tools.Registry
	providers    ProviderFactory
	metrics      *observability.Metrics

	upgrader websocket.Upgrader
}

// Deps collects Server's dependencies. Metrics may be nil.
type Deps struct {
	Logger       *slog.Logger
	Auth         *auth.Service
	Orchestrator *session.Orchestrator
	Runner       *turn.Runner
	Store        store.Store
	Broadcast    *broadcast.Manager
	Tools        *tools.Registry
	Providers    ProviderFactory
	Metrics      *observability.Metrics
}

// NewServer builds a Server from deps. Logger defaults to slog's default
// handler if nil.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:       logger,
		auth:         deps.Auth,
		orchestrator: deps.Orchestrator,
		runner:       deps.Runner,
		store:        deps.Store,
		broadcast:    deps.Broadcast,
		tools:        deps.Tools,
		providers:    deps.Providers,
		metrics:      deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the gateway's HTTP surface: /healthz, /ws, and, when
// metrics are configured, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/ws", auth.RequireAuth(s.auth, http.HandlerFunc(s.handleWS)))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimitBytes)

	id := uuid.NewString()
	bc := s.broadcast.Register(id, conn)
	defer s.broadcast.Unregister(id)

	c := &connection{server: s, id: id, conn: conn, bc: bc}
	c.serve()
}
