package link

import (
	"errors"
	"io"

	"github.com/nerrad567/tcplink/internal/wire"
)

// readLoop issues one read at a time on sess until the peer closes, a read
// fails, or the session is closed locally.
func (c *Client) readLoop(sess *session) {
	defer c.wg.Done()

	var splitter *wire.LineSplitter
	if c.framing == wire.FramingLine {
		splitter = wire.NewLineSplitter(len(sess.buf) * 4)
	}

	for {
		n, err := sess.conn.Read(sess.buf)
		if n > 0 {
			c.bytesReceived.Add(uint64(n))
			c.touch()
			if derr := c.deliverChunk(sess, sess.buf[:n], splitter); derr != nil {
				c.emit(Event{Kind: EventReadFailed, Remote: sess.remote, Err: derr})
				c.closeSession(sess)
				return
			}
		}

		if err == nil && n > 0 {
			continue
		}

		if sess.closed() {
			return
		}
		if derr := c.flushPending(sess, splitter); derr != nil {
			c.emit(Event{Kind: EventReadFailed, Remote: sess.remote, Err: derr})
			c.closeSession(sess)
			return
		}
		if err == nil || errors.Is(err, io.EOF) {
			// Orderly shutdown by the peer.
			c.closeSession(sess)
			return
		}

		c.emit(Event{Kind: EventReadFailed, Remote: sess.remote, Err: err})
		c.closeSession(sess)
		return
	}
}

// deliverChunk decodes the bytes of one read and emits data-arrived events.
// Unframed, the whole chunk is one event. Line framed, each complete line
// is one event and a partial line waits for the next read.
func (c *Client) deliverChunk(sess *session, chunk []byte, splitter *wire.LineSplitter) error {
	if splitter == nil {
		text, err := c.codec.decode(chunk)
		if err != nil {
			return err
		}
		c.emit(Event{Kind: EventDataArrived, Remote: sess.remote, Message: text})
		return nil
	}

	for _, frame := range splitter.Split(chunk) {
		text, err := c.codec.decode(frame)
		if err != nil {
			return err
		}
		c.emit(Event{Kind: EventDataArrived, Remote: sess.remote, Message: text})
	}
	return nil
}

// flushPending emits a final line left without a terminator when the
// stream ends.
func (c *Client) flushPending(sess *session, splitter *wire.LineSplitter) error {
	if splitter == nil {
		return nil
	}
	frame := splitter.Flush()
	if frame == nil {
		return nil
	}
	text, err := c.codec.decode(frame)
	if err != nil {
		return err
	}
	c.emit(Event{Kind: EventDataArrived, Remote: sess.remote, Message: text})
	return nil
}
