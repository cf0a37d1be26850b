package wire

import (
	"bytes"
	"fmt"
	"strings"
)

// Framing selects how message boundaries are marked on the stream.
type Framing string

const (
	// FramingNone writes payloads unmodified. Boundaries are not recoverable.
	FramingNone Framing = "none"

	// FramingLine terminates every payload with '\n'.
	FramingLine Framing = "line"
)

// lineTerminator ends a frame under FramingLine.
const lineTerminator = '\n'

// ParseFraming converts a configuration string to a Framing.
// An empty string selects FramingNone.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FramingNone):
		return FramingNone, nil
	case string(FramingLine), "newline":
		return FramingLine, nil
	default:
		return "", fmt.Errorf("%w: %q (use none or line)", ErrInvalidFraming, s)
	}
}

// Frame returns the bytes to put on the wire for payload.
// Under FramingNone the payload is returned unchanged (not copied).
func (f Framing) Frame(payload []byte) []byte {
	if f != FramingLine {
		return payload
	}
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = lineTerminator
	return out
}

// LineSplitter reassembles '\n'-terminated frames from arbitrary read chunks.
//
// Thread Safety:
//   - Not safe for concurrent use. Each read loop owns its own splitter.
type LineSplitter struct {
	pending []byte
	max     int
}

// NewLineSplitter creates a splitter that holds at most maxPending bytes of
// an unterminated frame. Zero disables the limit.
func NewLineSplitter(maxPending int) *LineSplitter {
	return &LineSplitter{max: maxPending}
}

// Split appends chunk to the pending data and returns every complete frame,
// without the terminator or a trailing '\r'. Returned slices are copies.
//
// If the unterminated remainder grows beyond the limit it is returned as a
// frame of its own so a peer that never sends '\n' cannot grow memory
// without bound.
func (s *LineSplitter) Split(chunk []byte) [][]byte {
	s.pending = append(s.pending, chunk...)

	var frames [][]byte
	for {
		idx := bytes.IndexByte(s.pending, lineTerminator)
		if idx < 0 {
			break
		}
		frame := bytes.TrimSuffix(s.pending[:idx], []byte{'\r'})
		frames = append(frames, bytes.Clone(frame))
		s.pending = s.pending[idx+1:]
	}

	if s.max > 0 && len(s.pending) > s.max {
		frames = append(frames, bytes.Clone(s.pending))
		s.pending = nil
	}

	// Release the backing array once fully drained.
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return frames
}

// Flush returns the unterminated remainder, without a trailing '\r', and
// empties the splitter. It returns nil when nothing is pending. Call it when
// the stream ends so a final line without '\n' is not lost.
func (s *LineSplitter) Flush() []byte {
	if len(s.pending) == 0 {
		return nil
	}
	frame := bytes.Clone(bytes.TrimSuffix(s.pending, []byte{'\r'}))
	s.pending = nil
	return frame
}

// Pending returns the number of buffered bytes not yet terminated.
func (s *LineSplitter) Pending() int {
	return len(s.pending)
}
