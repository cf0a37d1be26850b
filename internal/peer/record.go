package peer

import (
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is the server-side state of one accepted connection.
//
// Thread Safety:
//   - Subscribe, CheckSubTopic and Topics are safe for concurrent use.
//   - Write is serialized, so several deliverers may share a record.
//   - The read buffer belongs to the connection's read goroutine.
type Record struct {
	// ID identifies the session in logs and in the store.
	ID uuid.UUID

	// Seq is the process-local session number, starting at 1.
	Seq uint64

	Remote      netip.AddrPort
	ConnectedAt time.Time

	conn net.Conn
	buf  []byte

	mu     sync.RWMutex
	topics []string

	writeMu sync.Mutex
}

// NewRecord creates the record for an accepted connection.
func NewRecord(conn net.Conn, seq uint64, bufSize int, now time.Time) *Record {
	var remote netip.AddrPort
	if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ap := tcp.AddrPort()
		remote = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}

	return &Record{
		ID:          uuid.New(),
		Seq:         seq,
		Remote:      remote,
		ConnectedAt: now,
		conn:        conn,
		buf:         make([]byte, bufSize),
	}
}

// Subscribe appends topic to the subscription list. Duplicates are kept.
func (r *Record) Subscribe(topic string) {
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	r.mu.Unlock()
}

// CheckSubTopic reports whether topic exactly matches a subscription.
func (r *Record) CheckSubTopic(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Topics returns a copy of the subscriptions in arrival order.
func (r *Record) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.topics))
	copy(out, r.topics)
	return out
}

// Conn returns the connection handle.
func (r *Record) Conn() net.Conn {
	return r.conn
}

// Buffer returns the read buffer of the connection.
func (r *Record) Buffer() []byte {
	return r.buf
}

// Write sends p to the peer.
func (r *Record) Write(p []byte) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.Write(p)
}

// String identifies the record in logs.
func (r *Record) String() string {
	return r.ID.String() + "@" + r.Remote.String()
}
