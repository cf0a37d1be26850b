package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tcplink/internal/wire"
)

// Server defaults.
const (
	// DefaultReadBufferSize is the per-connection read buffer size.
	DefaultReadBufferSize = 4096

	// storeTimeout bounds each store call made on behalf of a peer.
	storeTimeout = 5 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Forwarder receives the publish commands sent by peers.
type Forwarder interface {
	Forward(ctx context.Context, from *Record, topic, message string) error
}

// ForwarderFunc adapts a function to the Forwarder interface.
type ForwarderFunc func(ctx context.Context, from *Record, topic, message string) error

// Forward implements Forwarder.
func (f ForwarderFunc) Forward(ctx context.Context, from *Record, topic, message string) error {
	return f(ctx, from, topic, message)
}

// Config holds Server configuration.
type Config struct {
	// Address is the listen address, for example ":8082".
	Address string

	// ReadBufferSize is the per-connection read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// Framing selects how inbound commands are delimited. Unframed, each
	// read is parsed on its own; line framed, partial lines are held until
	// the terminator arrives.
	Framing wire.Framing
}

// Stats holds server counters.
type Stats struct {
	Accepted      uint64
	Active        int
	Subscriptions uint64
	Publishes     uint64
	ParseErrors   uint64
	ForwardErrors uint64
	StoreErrors   uint64
}

// Server accepts peer connections and tracks their subscriptions.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Server struct {
	cfg       Config
	registry  *Registry
	store     Store
	forwarder Forwarder

	mu      sync.Mutex
	ln      net.Listener
	running bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	seq atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex

	accepted      atomic.Uint64
	subscriptions atomic.Uint64
	publishes     atomic.Uint64
	parseErrors   atomic.Uint64
	forwardErrors atomic.Uint64
	storeErrors   atomic.Uint64
}

// NewServer creates a server. store and forwarder may be nil.
func NewServer(cfg Config, store Store, forwarder Forwarder) *Server {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	return &Server{
		cfg:       cfg,
		registry:  NewRegistry(),
		store:     store,
		forwarder: forwarder,
	}
}

// Start listens on the configured address and runs the accept loop in the
// background.
//
// Parameters:
//   - ctx: Cancelling it stops the server as Close does
//
// Returns:
//   - error: If the server is running or closed, or listening fails
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.running {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address, err)
	}

	s.ln = ln
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.acceptLoop(ln)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		ln.Close() //nolint:errcheck // Unblocks Accept
	}()

	s.logInfo("peer server listening", "address", ln.Addr().String(), "framing", string(s.cfg.Framing))
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

// Registry returns the live peer registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close stops accepting, disconnects every peer and waits for their
// goroutines to finish. Safe to call multiple times.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	s.mu.Unlock()

	if !running {
		return nil
	}

	s.cancel()
	for _, r := range s.registry.Records() {
		r.conn.Close() //nolint:errcheck // Unblocks Read
	}
	s.wg.Wait()

	s.logInfo("peer server stopped")
	return nil
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:      s.accepted.Load(),
		Active:        s.registry.Count(),
		Subscriptions: s.subscriptions.Load(),
		Publishes:     s.publishes.Load(),
		ParseErrors:   s.parseErrors.Load(),
		ForwardErrors: s.forwardErrors.Load(),
		StoreErrors:   s.storeErrors.Load(),
	}
}

// acceptLoop hands each accepted connection to its own goroutine.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logWarn("accept failed", "error", err)
			continue
		}

		s.accepted.Add(1)
		rec := NewRecord(conn, s.seq.Add(1), s.cfg.ReadBufferSize, time.Now())
		s.registry.Register(rec)

		s.wg.Add(1)
		go s.serve(rec)
	}
}

// serve reads commands from one peer until it disconnects.
func (s *Server) serve(rec *Record) {
	defer s.wg.Done()
	defer s.leave(rec)

	s.logInfo("peer connected", "session", rec.ID.String(), "seq", rec.Seq, "remote", rec.Remote.String())
	s.storeCall("saving session", func(ctx context.Context) error {
		return s.store.SaveSession(ctx, Session{
			ID:          rec.ID.String(),
			Seq:         rec.Seq,
			Remote:      rec.Remote.String(),
			ConnectedAt: rec.ConnectedAt,
		})
	})

	// Closing the server context closes the connection.
	stop := context.AfterFunc(s.ctx, func() { rec.conn.Close() }) //nolint:errcheck // Unblocks Read
	defer stop()

	var splitter *wire.LineSplitter
	if s.cfg.Framing == wire.FramingLine {
		splitter = wire.NewLineSplitter(len(rec.buf) * 4)
	}

	buf := rec.Buffer()
	for {
		n, err := rec.conn.Read(buf)
		if n > 0 {
			s.handleChunk(rec, buf[:n], splitter)
		}
		if err != nil || n == 0 {
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logDebug("peer read failed", "session", rec.ID.String(), "error", err)
			}
			s.flushPending(rec, splitter)
			return
		}
	}
}

// handleChunk parses the commands held in one read.
func (s *Server) handleChunk(rec *Record, chunk []byte, splitter *wire.LineSplitter) {
	if splitter == nil {
		s.handleText(rec, string(chunk))
		return
	}
	for _, frame := range splitter.Split(chunk) {
		if len(frame) > 0 {
			s.handleText(rec, string(frame))
		}
	}
}

// flushPending applies a final command sent without a terminator. Nothing
// is applied once the server is stopping.
func (s *Server) flushPending(rec *Record, splitter *wire.LineSplitter) {
	if splitter == nil || s.ctx.Err() != nil {
		return
	}
	if frame := splitter.Flush(); len(frame) > 0 {
		s.handleText(rec, string(frame))
	}
}

// handleText parses and applies every command in text.
func (s *Server) handleText(rec *Record, text string) {
	cmds, errs := wire.ParseAll(text)
	for _, err := range errs {
		s.parseErrors.Add(1)
		s.logWarn("unparseable peer command", "session", rec.ID.String(), "error", err)
	}
	for _, cmd := range cmds {
		s.apply(rec, cmd)
	}
}

// apply executes one command for rec.
func (s *Server) apply(rec *Record, cmd wire.Command) {
	s.logDebug("peer command", "session", rec.ID.String(), "op", string(cmd.Op), "topic", cmd.Topic)

	switch cmd.Op {
	case wire.OpSubscribe:
		rec.Subscribe(cmd.Topic)
		s.subscriptions.Add(1)
		s.storeCall("storing subscription", func(ctx context.Context) error {
			return s.store.AddSubscription(ctx, rec.ID.String(), cmd.Topic, time.Now())
		})

	case wire.OpPublish:
		s.publishes.Add(1)
		if s.forwarder == nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
		err := s.forwarder.Forward(ctx, rec, cmd.Topic, cmd.Message)
		cancel()
		if err != nil {
			s.forwardErrors.Add(1)
			s.logWarn("forwarding publish failed", "session", rec.ID.String(), "topic", cmd.Topic, "error", err)
		}
	}
}

// leave removes rec and releases its connection.
func (s *Server) leave(rec *Record) {
	if !s.registry.Unregister(rec) {
		return
	}
	rec.conn.Close() //nolint:errcheck // Already closed in most paths

	s.storeCall("ending session", func(ctx context.Context) error {
		return s.store.EndSession(ctx, rec.ID.String(), time.Now())
	})
	s.logInfo("peer left", "session", rec.ID.String(), "remote", rec.Remote.String(), "topics", len(rec.Topics()))
}

// storeCall runs fn against the store, if any, with a bounded context.
// Failures are logged; the peer is served regardless.
func (s *Server) storeCall(what string, fn func(ctx context.Context) error) {
	if s.store == nil {
		return
	}
	// Detached so a closing server still records the session end.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), storeTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.storeErrors.Add(1)
		s.logError("peer store failed", "op", what, "error", err)
	}
}

// SetLogger sets the logger for this server.
func (s *Server) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Server) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Server) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (s *Server) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Server) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (s *Server) logError(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
