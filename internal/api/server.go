package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tcplink/internal/infrastructure/config"
	"github.com/nerrad567/tcplink/internal/infrastructure/logging"
	"github.com/nerrad567/tcplink/internal/link"
	"github.com/nerrad567/tcplink/internal/peer"
	"github.com/nerrad567/tcplink/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// LinkController is the part of a link client the API drives.
// *link.Client satisfies it.
type LinkController interface {
	Connect()
	Close()
	SendString(s string) error
	Subscribe(topic string) error
	Publish(topic, message string) error
	Stats() link.Stats
	Addresses() []netip.Addr
	Port() int
	RemoteEndpoint() netip.AddrPort
	LocalEndpoint() netip.AddrPort
	Observe(fn link.Listener) (cancel func())
}

// PeerDirectory lists live peers. *peer.Registry satisfies it.
type PeerDirectory interface {
	Records() []*peer.Record
	Get(id uuid.UUID) (*peer.Record, bool)
}

// SessionLookup reads stored peer sessions. *peer.SQLiteStore satisfies it.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (*peer.Session, error)
}

// HealthChecker is a component reported by the health endpoint. The mqtt,
// influxdb and database clients satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Link     LinkController
	Peers    PeerDirectory            // optional
	Sessions SessionLookup            // optional
	Checks   map[string]HealthChecker // optional, keyed by component name
	Metrics  *telemetry.Metrics
	Version  string
}

// Server is the admin HTTP API server.
//
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	link     LinkController
	peers    PeerDirectory
	sessions SessionLookup
	checks   map[string]HealthChecker
	metrics  *telemetry.Metrics
	version  string
	started  time.Time

	hub     *Hub
	tickets *ticketStore
	handler http.Handler

	mu        sync.Mutex
	closed    bool
	server    *http.Server
	ln        net.Listener
	cancel    context.CancelFunc
	unobserve func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, link, metrics)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Link == nil {
		return nil, errors.New("link client is required")
	}
	if deps.Metrics == nil {
		return nil, errors.New("metrics are required")
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		link:     deps.Link,
		peers:    deps.Peers,
		sessions: deps.Sessions,
		checks:   deps.Checks,
		metrics:  deps.Metrics,
		version:  deps.Version,
		started:  time.Now(),
		hub:      NewHub(deps.Config.WebSocket, deps.Logger),
		tickets:  newTicketStore(),
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays link events to it and serves in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Cancelling it stops the hub and ticket cleanup
//
// Returns:
//   - error: If the server is already started or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("api server closed")
	}
	if s.server != nil {
		return errors.New("api server already started")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	s.unobserve = s.link.Observe(s.relayLinkEvent)

	s.ln = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Timeouts.Read,
		ReadHeaderTimeout: s.cfg.Timeouts.Read,
		WriteTimeout:      s.cfg.Timeouts.Write,
		IdleTimeout:       s.cfg.Timeouts.Idle,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String(), "auth", s.authEnabled())
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed || s.server == nil {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv, cancel, unobserve := s.server, s.cancel, s.unobserve
	s.mu.Unlock()

	if unobserve != nil {
		unobserve()
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil || s.closed {
		return errors.New("api server not running")
	}
	return nil
}

// authEnabled reports whether bearer tokens are required.
func (s *Server) authEnabled() bool {
	return s.cfg.Auth.JWTSecret != ""
}
