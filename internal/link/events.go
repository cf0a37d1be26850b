package link

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"
)

// EventKind names a client event.
type EventKind string

// Event kinds emitted by a Client.
const (
	EventConnecting               EventKind = "connecting"
	EventConnected                EventKind = "connected"
	EventConnectFailed            EventKind = "connect-failed"
	EventConnectFailedPermanently EventKind = "connect-failed-permanently"
	EventDataArrived              EventKind = "data-arrived"
	EventClosed                   EventKind = "closed"
	EventReconnectRequested       EventKind = "reconnect-requested"
	EventReadFailed               EventKind = "read-failed"
	EventWriteFailed              EventKind = "write-failed"
	EventSendWhileDisconnected    EventKind = "send-while-disconnected"
)

// Event is one notification from a Client.
type Event struct {
	Kind     EventKind
	Severity slog.Level
	Time     time.Time

	// Remote is the peer for connection-scoped events. For connect
	// failures it is the first candidate address.
	Remote netip.AddrPort

	// Message holds the decoded text of a data-arrived event.
	Message string

	// Attempt is the retry counter value after a failed attempt.
	Attempt int

	// Err is the cause of a failure event.
	Err error
}

// String renders the event for logs.
func (e Event) String() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Remote, e.Err)
	case e.Kind == EventDataArrived:
		return fmt.Sprintf("%s %s: %q", e.Kind, e.Remote, e.Message)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.Remote)
	}
}

// severityOf returns the default severity for an event kind.
func severityOf(kind EventKind) slog.Level {
	switch kind {
	case EventConnectFailed, EventSendWhileDisconnected:
		return slog.LevelWarn
	case EventConnectFailedPermanently, EventReadFailed, EventWriteFailed:
		return slog.LevelError
	case EventDataArrived:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Listener receives client events.
//
// Listeners run synchronously on the goroutine that produced the event
// (the connect cycle, the read loop, the writer, the liveness forwarder or
// the caller of Send and Close). A slow listener delays that goroutine.
// Listeners may call Connect, Close and Send, but not Shutdown.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// dispatcher fans events out to registered listeners.
type dispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []listenerEntry
}

// add registers fn and returns a function that removes it.
func (d *dispatcher) add(fn Listener) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listenerEntry{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, l := range d.listeners {
				if l.id == id {
					d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// snapshot returns the current listeners in registration order.
func (d *dispatcher) snapshot() []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Listener, len(d.listeners))
	for i, l := range d.listeners {
		out[i] = l.fn
	}
	return out
}

// Observe registers a listener for every event. The returned function
// removes it and is safe to call more than once.
func (c *Client) Observe(fn Listener) (cancel func()) {
	return c.dispatch.add(fn)
}

// OnConnected registers fn for connected events.
func (c *Client) OnConnected(fn func(remote netip.AddrPort)) (cancel func()) {
	return c.Observe(func(e Event) {
		if e.Kind == EventConnected {
			fn(e.Remote)
		}
	})
}

// OnDataArrived registers fn for data-arrived events.
func (c *Client) OnDataArrived(fn func(remote netip.AddrPort, message string)) (cancel func()) {
	return c.Observe(func(e Event) {
		if e.Kind == EventDataArrived {
			fn(e.Remote, e.Message)
		}
	})
}

// OnReconnectRequested registers fn for reconnect-requested events.
func (c *Client) OnReconnectRequested(fn func()) (cancel func()) {
	return c.Observe(func(e Event) {
		if e.Kind == EventReconnectRequested {
			fn()
		}
	})
}

// emit stamps, logs and delivers an event. Must not be called with c.mu held.
func (c *Client) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = c.clk.Now()
	}
	e.Severity = severityOf(e.Kind)
	c.countEvent(e.Kind)
	c.logEvent(e)

	for _, fn := range c.dispatch.snapshot() {
		c.deliver(fn, e)
	}
}

// deliver runs one listener, recovering a panic so the client goroutine
// that produced the event keeps running.
func (c *Client) deliver(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("event listener panicked", "event", string(e.Kind), "panic", r)
		}
	}()
	fn(e)
}

// logEvent writes the event to the logger at its severity.
func (c *Client) logEvent(e Event) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger == nil {
		return
	}

	kv := []any{"event", string(e.Kind)}
	if e.Remote.IsValid() {
		kv = append(kv, "remote", e.Remote.String())
	}
	if e.Attempt > 0 {
		kv = append(kv, "attempt", e.Attempt)
	}
	if e.Kind == EventDataArrived {
		kv = append(kv, "length", len(e.Message))
	}
	if e.Err != nil {
		kv = append(kv, "error", e.Err)
	}

	switch {
	case e.Severity >= slog.LevelError:
		logger.Error("link event", kv...)
	case e.Severity >= slog.LevelWarn:
		logger.Warn("link event", kv...)
	case e.Severity >= slog.LevelInfo:
		logger.Info("link event", kv...)
	default:
		logger.Debug("link event", kv...)
	}
}
