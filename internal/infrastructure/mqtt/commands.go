package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
)

// Command verbs, the last level of a command topic.
const (
	CommandSend      = "send"
	CommandSubscribe = "subscribe"
	CommandPublish   = "publish"
)

// Subscriber is the subscribing side of a Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// LinkWriter is the write side of a stream client.
type LinkWriter interface {
	SendString(s string) error
	Subscribe(topic string) error
	Publish(topic, message string) error
}

// PublishCommand is the payload of a publish command.
type PublishCommand struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// CommandIntake turns broker messages on the command topics of one stream
// client into writes on that client.
//
// Payloads:
//   - send: the text to send, verbatim
//   - subscribe: the topic name, verbatim
//   - publish: a PublishCommand as JSON
type CommandIntake struct {
	link LinkWriter

	handled atomic.Uint64
	failed  atomic.Uint64
}

// ListenCommands subscribes to Topics.ClientCommands(clientID) and applies
// every message to w.
//
// Returns:
//   - *CommandIntake: Counters for the applied commands
//   - error: If the subscription fails
func ListenCommands(sub Subscriber, topics Topics, clientID string, qos byte, w LinkWriter) (*CommandIntake, error) {
	in := &CommandIntake{link: w}
	if err := sub.Subscribe(topics.ClientCommands(clientID), qos, in.handle); err != nil {
		return nil, fmt.Errorf("subscribing to commands: %w", err)
	}
	return in, nil
}

// handle is the MessageHandler for command topics.
func (in *CommandIntake) handle(topic string, payload []byte) error {
	err := in.apply(topic, payload)
	if err != nil {
		in.failed.Add(1)
		return err
	}
	in.handled.Add(1)
	return nil
}

func (in *CommandIntake) apply(topic string, payload []byte) error {
	verb := topic[strings.LastIndexByte(topic, '/')+1:]

	switch verb {
	case CommandSend:
		return in.link.SendString(string(payload))

	case CommandSubscribe:
		name := strings.TrimSpace(string(payload))
		if name == "" {
			return fmt.Errorf("%w: empty topic", ErrBadCommand)
		}
		return in.link.Subscribe(name)

	case CommandPublish:
		var cmd PublishCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("%w: %w", ErrBadCommand, err)
		}
		if cmd.Topic == "" {
			return fmt.Errorf("%w: empty topic", ErrBadCommand)
		}
		return in.link.Publish(cmd.Topic, cmd.Message)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
}

// Counts returns the number of applied and rejected commands.
func (in *CommandIntake) Counts() (handled, failed uint64) {
	return in.handled.Load(), in.failed.Load()
}
