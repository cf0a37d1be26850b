package link

import "errors"

// Domain errors for the link package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNilPayload is returned by Send when the payload is nil.
	// An empty, non-nil payload is allowed.
	ErrNilPayload = errors.New("link: payload cannot be nil")

	// ErrNotConnected is returned when sending on a client that is not connected.
	ErrNotConnected = errors.New("link: not connected")

	// ErrQueueFull is returned when the outbound queue of the connection is full.
	ErrQueueFull = errors.New("link: outbound queue full")

	// ErrConnectFailed wraps the per-address errors of a failed connect attempt.
	ErrConnectFailed = errors.New("link: connect failed")

	// ErrNoEndpoints is returned when an endpoint set would be empty.
	ErrNoEndpoints = errors.New("link: no remote endpoints")

	// ErrInvalidPort is returned when a port is outside 1-65535.
	ErrInvalidPort = errors.New("link: invalid port")

	// ErrUnknownEncoding is returned when a text encoding name is not recognised.
	ErrUnknownEncoding = errors.New("link: unknown text encoding")

	// ErrEncodeFailed is returned when text cannot be represented in the
	// configured encoding.
	ErrEncodeFailed = errors.New("link: encoding text failed")

	// ErrShutdown is returned by operations on a client after Shutdown.
	ErrShutdown = errors.New("link: client shut down")
)
