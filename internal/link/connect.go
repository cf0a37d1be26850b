package link

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/multierr"
)

// cycle is one run of connect attempts. kick wakes a pending retry wait.
type cycle struct {
	kick chan struct{}
}

// Connect starts connecting to the remote endpoints and returns at once.
//
// It is a no-op when already connected. When a connect cycle is already
// running, Connect cuts its pending retry wait short instead of starting a
// second one. After Shutdown it does nothing.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.released || c.state == StateConnected {
		c.mu.Unlock()
		return
	}

	c.armed = c.autoReconnect

	if c.cycle != nil {
		select {
		case c.cycle.kick <- struct{}{}:
		default:
		}
		c.mu.Unlock()
		return
	}

	cy := &cycle{kick: make(chan struct{}, 1)}
	c.cycle = cy
	c.state = StateConnecting
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(Event{Kind: EventConnecting, Remote: c.endpoints.First()})
	go c.runCycle(cy)
}

// runCycle attempts the endpoint set until one address accepts, the retry
// budget is exceeded, or the client shuts down.
func (c *Client) runCycle(cy *cycle) {
	defer c.wg.Done()

	for {
		conn, remote, err := c.dialAll(c.ctx)
		if c.ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err == nil {
			c.establish(cy, conn, remote)
			return
		}

		c.mu.Lock()
		c.retries++
		attempt := c.retries
		exhausted := c.retries > c.maxRetries
		if exhausted && c.cycle == cy {
			// State stays Connecting; a later Connect starts a new cycle.
			c.cycle = nil
		}
		c.mu.Unlock()

		if exhausted {
			c.emit(Event{
				Kind:    EventConnectFailedPermanently,
				Remote:  c.endpoints.First(),
				Attempt: attempt,
				Err:     err,
			})
			return
		}

		// Create the timer before the event so a mock clock advanced by a
		// listener is observed.
		timer := c.clk.Timer(c.retryInterval)
		c.emit(Event{
			Kind:    EventConnectFailed,
			Remote:  c.endpoints.First(),
			Attempt: attempt,
			Err:     err,
		})

		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-cy.kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dialAll tries each candidate address in order and returns the first
// connection that succeeds. Per-address errors are combined.
func (c *Client) dialAll(ctx context.Context) (net.Conn, netip.AddrPort, error) {
	var errs error

	for _, target := range c.endpoints.AddrPorts() {
		dctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
		conn, err := c.dialer.DialContext(dctx, "tcp", target.String())
		cancel()

		if err == nil {
			return conn, remoteAddrPort(conn, target), nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", target, err))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, netip.AddrPort{}, fmt.Errorf("%w: %w", ErrConnectFailed, errs)
}

// establish installs a new connection and starts its read and write loops.
func (c *Client) establish(cy *cycle, conn net.Conn, remote netip.AddrPort) {
	sess := newSession(conn, remote, c.readBufferFor(conn), c.queueSize)

	c.mu.Lock()
	if c.released || c.cycle != cy {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.retries = 0
	c.cycle = nil
	c.sess = sess
	c.state = StateConnected
	c.wg.Add(2)
	c.mu.Unlock()

	c.touch()
	c.emit(Event{Kind: EventConnected, Remote: remote})

	go c.writeLoop(sess)
	go c.readLoop(sess)
}

// readBufferFor sizes the read buffer once per connection.
func (c *Client) readBufferFor(conn net.Conn) int {
	if c.readBufferSize > 0 {
		return c.readBufferSize
	}
	size := socketReceiveBuffer(conn)
	switch {
	case size <= 0:
		return defaultReadBuffer
	case size < minReadBuffer:
		return minReadBuffer
	case size > maxReadBuffer:
		return maxReadBuffer
	default:
		return size
	}
}

// Close releases the live connection and disarms automatic reconnect.
// It only has an effect in the Connected state.
func (c *Client) Close() {
	c.closeSession(nil)
}

// closeSession closes target, or the current session when target is nil.
// It does nothing if target is no longer the current session.
func (c *Client) closeSession(target *session) {
	c.mu.Lock()
	if c.state != StateConnected || c.sess == nil || (target != nil && c.sess != target) {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	c.sess = nil
	c.retries = 0
	c.armed = false
	c.state = StateClosed
	c.mu.Unlock()

	if err := sess.close(); err != nil {
		c.logError("closing connection failed", "remote", sess.remote.String(), "error", err)
	}
	c.emit(Event{Kind: EventClosed, Remote: sess.remote})
}

// remoteAddrPort returns the peer address of conn, falling back to the
// dialled target.
func remoteAddrPort(conn net.Conn, target netip.AddrPort) netip.AddrPort {
	return addrPortOf(conn.RemoteAddr(), target)
}

// addrPortOf converts a net.Addr to an AddrPort with fallback.
func addrPortOf(a net.Addr, fallback netip.AddrPort) netip.AddrPort {
	if tcp, ok := a.(*net.TCPAddr); ok {
		ap := tcp.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	if a != nil {
		if ap, err := netip.ParseAddrPort(a.String()); err == nil {
			return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
		}
	}
	return fallback
}
