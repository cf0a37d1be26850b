package link

import (
	"bytes"

	"github.com/nerrad567/tcplink/internal/wire"
)

// Send queues payload for writing on the live connection and returns
// without waiting for the write.
//
// An empty payload is allowed; under line framing it still sends '\n'.
//
// Returns:
//   - error: ErrNilPayload for a nil payload, ErrShutdown after Shutdown,
//     ErrNotConnected when there is no live connection, ErrQueueFull when
//     the outbound queue is full
func (c *Client) Send(payload []byte) error {
	if payload == nil {
		return ErrNilPayload
	}

	c.mu.Lock()
	sess := c.sess
	released := c.released
	connected := c.state == StateConnected && sess != nil
	c.mu.Unlock()

	if released {
		return ErrShutdown
	}
	if !connected {
		c.emit(Event{Kind: EventSendWhileDisconnected, Remote: c.endpoints.First(), Err: ErrNotConnected})
		return ErrNotConnected
	}

	var frame []byte
	if c.framing == wire.FramingLine {
		frame = c.framing.Frame(payload)
	} else {
		frame = bytes.Clone(payload)
	}

	if err := sess.enqueue(frame); err != nil {
		return err
	}
	c.sendsQueued.Add(1)
	return nil
}

// SendString encodes s with the configured encoding and sends it.
func (c *Client) SendString(s string) error {
	b, err := c.codec.encode(s)
	if err != nil {
		return err
	}
	if b == nil {
		b = []byte{}
	}
	return c.Send(b)
}

// Subscribe sends "subscribe#<topic>".
func (c *Client) Subscribe(topic string) error {
	return c.SendString(wire.Subscribe(topic))
}

// Publish sends "publish#<topic>#<message>".
func (c *Client) Publish(topic, message string) error {
	return c.SendString(wire.Publish(topic, message))
}

// writeLoop drains the outbound queue of sess, one write at a time.
func (c *Client) writeLoop(sess *session) {
	defer c.wg.Done()

	for {
		select {
		case <-sess.done:
			return
		case frame := <-sess.out:
			n, err := sess.conn.Write(frame)
			c.bytesSent.Add(uint64(n))
			if err != nil {
				if sess.closed() {
					return
				}
				c.emit(Event{Kind: EventWriteFailed, Remote: sess.remote, Err: err})
				continue
			}
			c.touch()
		}
	}
}
