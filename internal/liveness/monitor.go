package liveness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultInterval is the polling cadence used when Config.Interval is zero.
const DefaultInterval = time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Config holds Monitor configuration.
type Config struct {
	// Interval is the time between probes.
	// Default: 1 second.
	Interval time.Duration

	// Prober performs the reachability check.
	// Default: NewSystemProber().
	Prober Prober

	// Clock drives the polling ticker. Tests inject clock.NewMock().
	// Default: the wall clock.
	Clock clock.Clock
}

// Stats holds monitor counters.
type Stats struct {
	Ticks         uint64 // Probes performed
	Edges         uint64 // Down-to-up transitions signalled
	Dropped       uint64 // Transitions not queued because one was pending
	ProbeErrors   uint64 // Probes that failed and were treated as reachable
	WasDown       bool   // Current edge state
	LastReachable bool   // Result of the most recent probe
}

// Monitor polls network reachability and signals down-to-up transitions.
//
// Thread Safety:
//   - The edge state is written only by the polling goroutine.
//   - All exported methods are safe for concurrent use.
type Monitor struct {
	interval time.Duration
	prober   Prober
	clk      clock.Clock

	// wasDown is the edge state. Single writer: the polling goroutine.
	wasDown       atomic.Bool
	lastReachable atomic.Bool

	// signals holds at most one pending down-to-up transition.
	signals chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	ticks       atomic.Uint64
	edges       atomic.Uint64
	probeErrors atomic.Uint64
	dropped     atomic.Uint64
}

// New creates a monitor. Call Start to begin polling.
func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Prober == nil {
		cfg.Prober = NewSystemProber()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	m := &Monitor{
		interval: cfg.Interval,
		prober:   cfg.Prober,
		clk:      cfg.Clock,
		signals:  make(chan struct{}, 1),
	}
	m.lastReachable.Store(true)
	return m
}

// Start launches the polling goroutine. Calls after the first are no-ops.
//
// The ticker is created before Start returns, so a mock clock advanced
// immediately afterwards is observed.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		m.cancel = cancel

		ticker := m.clk.Ticker(m.interval)
		m.wg.Add(1)
		go m.pollLoop(ctx, ticker)

		m.logInfo("liveness monitor started", "interval", m.interval.String())
	})
}

// Stop halts polling and waits for the goroutine to exit.
// Safe to call multiple times, and before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		// Make a later Start a no-op.
		m.startOnce.Do(func() {})
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		m.logInfo("liveness monitor stopped")
	})
}

// Reachable returns the channel that receives a value after a down-to-up
// transition. It is never closed.
//
// The channel holds one pending value. Polling never waits for the
// receiver: a transition that arrives while a value is still pending is
// counted in Stats.Dropped and merged into it.
func (m *Monitor) Reachable() <-chan struct{} {
	return m.signals
}

// WasDown reports the current edge state.
func (m *Monitor) WasDown() bool {
	return m.wasDown.Load()
}

// Stats returns current counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Ticks:         m.ticks.Load(),
		Edges:         m.edges.Load(),
		ProbeErrors:   m.probeErrors.Load(),
		Dropped:       m.dropped.Load(),
		WasDown:       m.wasDown.Load(),
		LastReachable: m.lastReachable.Load(),
	}
}

// SetLogger sets the logger for this monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// pollLoop probes on every tick and hands edges to the receiver.
func (m *Monitor) pollLoop(ctx context.Context, ticker *clock.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.check(ctx) {
				continue
			}
			select {
			case m.signals <- struct{}{}:
			default:
				m.dropped.Add(1)
				m.logDebug("reachable signal already pending")
			}
		}
	}
}

// check runs one probe and updates the edge state.
// Returns true when this tick is a down-to-up transition.
func (m *Monitor) check(ctx context.Context) bool {
	m.ticks.Add(1)

	reachable, err := m.prober.Reachable(ctx)
	if err != nil {
		// Probe unavailable: degrade to reachable.
		if m.probeErrors.Add(1) == 1 {
			m.logWarn("reachability probe failed, assuming reachable", "error", err)
		}
		reachable = true
	}
	m.lastReachable.Store(reachable)

	if !reachable {
		if !m.wasDown.Swap(true) {
			m.logInfo("network unreachable")
		}
		return false
	}

	if m.wasDown.CompareAndSwap(true, false) {
		m.edges.Add(1)
		m.logInfo("network reachable again")
		return true
	}
	return false
}

// logInfo logs an info message if logger is set.
func (m *Monitor) logInfo(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (m *Monitor) logWarn(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (m *Monitor) logDebug(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
