package link

import (
	"net"
	"net/netip"
	"sync"
)

// session is one live connection with its read buffer and outbound queue.
type session struct {
	conn   net.Conn
	remote netip.AddrPort
	local  netip.AddrPort
	buf    []byte
	out    chan []byte

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newSession(conn net.Conn, remote netip.AddrPort, bufSize, queueSize int) *session {
	return &session{
		conn:   conn,
		remote: remote,
		local:  addrPortOf(conn.LocalAddr(), netip.AddrPort{}),
		buf:    make([]byte, bufSize),
		out:    make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// close releases the connection. Safe to call multiple times.
func (s *session) close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// closed reports whether close has been called.
func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue hands a frame to the writer without blocking.
func (s *session) enqueue(frame []byte) error {
	if s.closed() {
		return ErrNotConnected
	}
	select {
	case s.out <- frame:
		return nil
	case <-s.done:
		return ErrNotConnected
	default:
		return ErrQueueFull
	}
}
