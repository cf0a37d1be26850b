package wire

import "errors"

// Domain errors for the wire package.
var (
	// ErrEmptyMessage is returned when parsing an empty or whitespace-only message.
	ErrEmptyMessage = errors.New("wire: empty message")

	// ErrUnknownCommand is returned when a message does not start with a known verb.
	ErrUnknownCommand = errors.New("wire: unknown command")

	// ErrMalformed is returned when a known verb is missing required fields.
	ErrMalformed = errors.New("wire: malformed message")

	// ErrInvalidFraming is returned when a framing name is not recognised.
	ErrInvalidFraming = errors.New("wire: invalid framing")
)
