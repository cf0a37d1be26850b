package peer

import "errors"

// Domain errors for the peer package.
var (
	// ErrServerClosed is returned when starting a server that has been closed.
	ErrServerClosed = errors.New("peer: server closed")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("peer: server already running")

	// ErrSessionNotFound is returned when a stored session does not exist.
	ErrSessionNotFound = errors.New("peer: session not found")

	// ErrEmptyTopic is returned when storing a subscription with no topic.
	ErrEmptyTopic = errors.New("peer: topic cannot be empty")
)
