package link

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/text/encoding"

	"github.com/nerrad567/tcplink/internal/liveness"
	"github.com/nerrad567/tcplink/internal/wire"
)

// Default configuration values.
const (
	// DefaultRetries is the number of failed attempts tolerated before a
	// connect cycle gives up.
	DefaultRetries = 3

	// DefaultRetryInterval is the flat wait between attempts.
	DefaultRetryInterval = 5 * time.Second

	// DefaultConnectTimeout bounds a single address attempt.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultKeepAlive is both the keepalive idle time and probe interval.
	DefaultKeepAlive = 15 * time.Second

	// DefaultSendQueueSize is the outbound queue depth per connection.
	DefaultSendQueueSize = 64

	// NoRetries disables retries: the first failure is permanent.
	NoRetries = -1
)

// Read buffer bounds applied to the socket receive buffer size.
const (
	minReadBuffer     = 4 * 1024
	maxReadBuffer     = 1024 * 1024
	defaultReadBuffer = 8 * 1024
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dialer opens TCP connections. *net.Dialer satisfies this interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds Client configuration.
type Config struct {
	// Endpoints are the candidate remote addresses. Required.
	Endpoints EndpointSet

	// LocalAddr optionally binds the client socket. Ignored when Dialer is set.
	LocalAddr *net.TCPAddr

	// Retries is the number of failed attempts tolerated per cycle.
	// Default: 3. Use NoRetries for none.
	Retries int

	// RetryInterval is the flat wait between attempts.
	// Default: 5 seconds.
	RetryInterval time.Duration

	// ConnectTimeout bounds the attempt on one address.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// KeepAlive sets the TCP keepalive idle time and interval.
	// Default: 15 seconds. Negative disables keepalive. Ignored when Dialer is set.
	KeepAlive time.Duration

	// Encoding converts between wire bytes and text.
	// Default: UTF-8.
	Encoding encoding.Encoding

	// Framing selects how messages are delimited on the stream.
	// Default: wire.FramingNone.
	Framing wire.Framing

	// AutoReconnect makes the client call Connect itself when the liveness
	// monitor reports the network is back. Armed by Connect, disarmed by Close.
	AutoReconnect bool

	// SendQueueSize is the outbound queue depth per connection.
	// Default: 64.
	SendQueueSize int

	// ReadBufferSize overrides the read buffer size. Zero sizes the buffer
	// from the socket receive buffer.
	ReadBufferSize int

	// Liveness configures the reachability monitor. Clock defaults to the
	// client clock.
	Liveness liveness.Config

	// Dialer opens connections. Default: a *net.Dialer built from
	// LocalAddr and KeepAlive.
	Dialer Dialer

	// Clock drives retry timers and event timestamps.
	// Default: the wall clock.
	Clock clock.Clock
}

// Stats holds client counters.
type Stats struct {
	State             State
	Retries           int    // Current retry counter
	Connects          uint64 // Successful connects
	ConnectFailures   uint64 // Failed attempts
	PermanentFailures uint64 // Cycles that gave up
	Closes            uint64 // Closed events
	ReconnectRequests uint64 // Reconnect-requested events
	BytesReceived     uint64
	BytesSent         uint64
	MessagesReceived  uint64 // Data-arrived events
	SendsQueued       uint64
	WriteErrors       uint64
	ReadErrors        uint64
	LastActivity      time.Time
}

// Client is a resilient client for one TCP stream.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Events are delivered without holding the client lock, so listeners
//     may call Connect, Close and Send.
type Client struct {
	endpoints      EndpointSet
	maxRetries     int
	retryInterval  time.Duration
	connectTimeout time.Duration
	framing        wire.Framing
	queueSize      int
	readBufferSize int
	autoReconnect  bool
	codec          codec
	dialer         Dialer
	clk            clock.Clock

	monitor *liveness.Monitor

	// mu guards the fields below.
	mu       sync.Mutex
	state    State
	retries  int
	armed    bool
	sess     *session
	cycle    *cycle
	released bool

	dispatch dispatcher

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	connects          atomic.Uint64
	connectFailures   atomic.Uint64
	permanentFailures atomic.Uint64
	closes            atomic.Uint64
	reconnectRequests atomic.Uint64
	bytesReceived     atomic.Uint64
	bytesSent         atomic.Uint64
	messagesReceived  atomic.Uint64
	sendsQueued       atomic.Uint64
	writeErrors       atomic.Uint64
	readErrors        atomic.Uint64
	lastActivity      atomic.Int64
}

// New creates a client in the Idle state and starts its liveness monitor.
// No connection is attempted until Connect is called.
//
// Parameters:
//   - cfg: Client configuration. Endpoints is required.
//
// Returns:
//   - *Client: The client; release it with Shutdown
//   - error: ErrNoEndpoints if cfg.Endpoints is empty
func New(cfg Config) (*Client, error) {
	if cfg.Endpoints.Len() == 0 {
		return nil, ErrNoEndpoints
	}

	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	} else if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Encoding == nil {
		cfg.Encoding, _ = LookupEncoding("")
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSendQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Liveness.Clock == nil {
		cfg.Liveness.Clock = cfg.Clock
	}
	if cfg.Dialer == nil {
		cfg.Dialer = newNetDialer(cfg.LocalAddr, cfg.KeepAlive)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		endpoints:      cfg.Endpoints,
		maxRetries:     cfg.Retries,
		retryInterval:  cfg.RetryInterval,
		connectTimeout: cfg.ConnectTimeout,
		framing:        cfg.Framing,
		queueSize:      cfg.SendQueueSize,
		readBufferSize: cfg.ReadBufferSize,
		autoReconnect:  cfg.AutoReconnect,
		codec:          codec{enc: cfg.Encoding},
		dialer:         cfg.Dialer,
		clk:            cfg.Clock,
		monitor:        liveness.New(cfg.Liveness),
		state:          StateIdle,
		ctx:            ctx,
		cancel:         cancel,
	}

	c.monitor.Start(ctx)
	c.wg.Add(1)
	go c.forwardLiveness()

	return c, nil
}

// newNetDialer builds the default dialer with TCP keepalive set.
func newNetDialer(local *net.TCPAddr, keepAlive time.Duration) *net.Dialer {
	d := &net.Dialer{}
	if local != nil {
		d.LocalAddr = local
	}
	if keepAlive < 0 {
		d.KeepAlive = -1
		return d
	}
	d.KeepAliveConfig = net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepAlive,
		Interval: keepAlive,
	}
	return d
}

// Shutdown tears the client down: it stops the liveness monitor, cancels
// any connect cycle, closes a live connection and waits for every
// background goroutine to exit. Safe to call multiple times.
//
// Shutdown must not be called from a Listener.
func (c *Client) Shutdown() error {
	var err error
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.released = true
		c.armed = false
		sess := c.sess
		c.sess = nil
		c.cycle = nil
		if c.state == StateConnected {
			c.state = StateClosed
		}
		c.mu.Unlock()

		c.cancel()
		c.monitor.Stop()

		if sess != nil {
			err = sess.close()
			c.emit(Event{Kind: EventClosed, Remote: sess.remote})
		}

		c.wg.Wait()
		c.logInfo("link client shut down")
	})
	return err
}

// forwardLiveness turns liveness edges into reconnect-requested events and,
// when armed, a Connect call.
func (c *Client) forwardLiveness() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.monitor.Reachable():
			c.emit(Event{Kind: EventReconnectRequested, Remote: c.RemoteEndpoint()})

			c.mu.Lock()
			armed := c.armed && !c.released
			c.mu.Unlock()
			if armed {
				c.Connect()
			}
		}
	}
}

// IsConnected reports whether the client holds a live connection.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Addresses returns the configured candidate addresses.
func (c *Client) Addresses() []netip.Addr {
	return c.endpoints.Addrs()
}

// Port returns the configured remote port.
func (c *Client) Port() int {
	return c.endpoints.Port()
}

// RemoteEndpoint returns the connected peer, or the first candidate when
// not connected.
func (c *Client) RemoteEndpoint() netip.AddrPort {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		return sess.remote
	}
	return c.endpoints.First()
}

// LocalEndpoint returns the local address of the live connection, or the
// zero AddrPort when not connected.
func (c *Client) LocalEndpoint() netip.AddrPort {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return netip.AddrPort{}
	}
	return sess.local
}

// Liveness returns the client's reachability monitor.
func (c *Client) Liveness() *liveness.Monitor {
	return c.monitor
}

// Stats returns current counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	state, retries := c.state, c.retries
	c.mu.Unlock()

	var last time.Time
	if ns := c.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return Stats{
		State:             state,
		Retries:           retries,
		Connects:          c.connects.Load(),
		ConnectFailures:   c.connectFailures.Load(),
		PermanentFailures: c.permanentFailures.Load(),
		Closes:            c.closes.Load(),
		ReconnectRequests: c.reconnectRequests.Load(),
		BytesReceived:     c.bytesReceived.Load(),
		BytesSent:         c.bytesSent.Load(),
		MessagesReceived:  c.messagesReceived.Load(),
		SendsQueued:       c.sendsQueued.Load(),
		WriteErrors:       c.writeErrors.Load(),
		ReadErrors:        c.readErrors.Load(),
		LastActivity:      last,
	}
}

// countEvent updates the counters tied to event kinds.
func (c *Client) countEvent(kind EventKind) {
	switch kind {
	case EventConnected:
		c.connects.Add(1)
	case EventConnectFailed:
		c.connectFailures.Add(1)
	case EventConnectFailedPermanently:
		c.connectFailures.Add(1)
		c.permanentFailures.Add(1)
	case EventClosed:
		c.closes.Add(1)
	case EventReconnectRequested:
		c.reconnectRequests.Add(1)
	case EventDataArrived:
		c.messagesReceived.Add(1)
	case EventReadFailed:
		c.readErrors.Add(1)
	case EventWriteFailed:
		c.writeErrors.Add(1)
	}
}

// touch records activity on the connection.
func (c *Client) touch() {
	c.lastActivity.Store(c.clk.Now().UnixNano())
}

// SetLogger sets the logger for this client and its liveness monitor.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()

	if logger != nil {
		c.monitor.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
