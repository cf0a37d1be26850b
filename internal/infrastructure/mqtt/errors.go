package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
var (
	// ErrNotConnected is returned when an operation needs a live broker connection.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned when the initial connection fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscription is rejected.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for QoS values above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty topics or topics carrying wildcards
	// where a concrete topic is needed.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrUnknownCommand is returned for a command topic with an unknown verb.
	ErrUnknownCommand = errors.New("mqtt: unknown command")

	// ErrBadCommand is returned for a command payload that cannot be used.
	ErrBadCommand = errors.New("mqtt: bad command payload")
)
