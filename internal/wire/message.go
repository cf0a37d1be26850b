package wire

import (
	"fmt"
	"strings"
)

// Delimiters and verbs of the client convention.
const (
	// Delimiter separates the verb, topic and message.
	Delimiter = "#"

	// VerbSubscribe is the verb for subscribe messages.
	VerbSubscribe = "subscribe"

	// VerbPublish is the verb for publish messages.
	VerbPublish = "publish"
)

// Delimiters and verbs of the legacy server convention.
const (
	legacyBodySplit    = "-"
	legacyContentSplit = "|"
	legacySubscribe    = "sub"
	legacyPublish      = "pub"
)

// Op identifies the kind of a parsed command.
type Op string

const (
	OpSubscribe Op = "subscribe"
	OpPublish   Op = "publish"
)

// Command is a parsed subscribe or publish message.
type Command struct {
	Op      Op
	Topic   string
	Message string // Only set for OpPublish
}

// String renders the command in the client convention.
func (c Command) String() string {
	if c.Op == OpPublish {
		return Publish(c.Topic, c.Message)
	}
	return Subscribe(c.Topic)
}

// Subscribe builds the text of a subscribe message.
//
// Example:
//
//	wire.Subscribe("weather") // "subscribe#weather"
func Subscribe(topic string) string {
	return VerbSubscribe + Delimiter + topic
}

// Publish builds the text of a publish message.
//
// Example:
//
//	wire.Publish("weather", "sunny") // "publish#weather#sunny"
func Publish(topic, message string) string {
	return VerbPublish + Delimiter + topic + Delimiter + message
}

// Parse decodes a single message in either the client or the legacy form.
//
// Trailing "\r\n" is ignored. For publish messages the message body is
// everything after the second delimiter, so a '#' inside the body survives.
//
// Returns:
//   - Command: The parsed command
//   - error: ErrEmptyMessage, ErrUnknownCommand or ErrMalformed
func Parse(text string) (Command, error) {
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return Command{}, ErrEmptyMessage
	}

	if strings.HasPrefix(text, legacyBodySplit) {
		return parseLegacy(strings.TrimPrefix(text, legacyBodySplit))
	}

	parts := strings.SplitN(text, Delimiter, 3)
	switch parts[0] {
	case VerbSubscribe:
		if len(parts) < 2 || parts[1] == "" {
			return Command{}, fmt.Errorf("%w: subscribe requires a topic", ErrMalformed)
		}
		// Anything after a second delimiter belongs to the topic.
		return Command{Op: OpSubscribe, Topic: strings.Join(parts[1:], Delimiter)}, nil
	case VerbPublish:
		if len(parts) < 3 || parts[1] == "" {
			return Command{}, fmt.Errorf("%w: publish requires a topic and a message", ErrMalformed)
		}
		return Command{Op: OpPublish, Topic: parts[1], Message: parts[2]}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, parts[0])
	}
}

// parseLegacy decodes "sub|topic" and "pub|topic|msg" bodies.
func parseLegacy(body string) (Command, error) {
	arr := strings.Split(body, legacyContentSplit)
	if len(arr) < 2 || arr[1] == "" {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformed, body)
	}

	switch {
	case arr[0] == legacySubscribe && len(arr) == 2:
		return Command{Op: OpSubscribe, Topic: arr[1]}, nil
	case arr[0] == legacyPublish && len(arr) == 3:
		return Command{Op: OpPublish, Topic: arr[1], Message: arr[2]}, nil
	case arr[0] == legacySubscribe || arr[0] == legacyPublish:
		return Command{}, fmt.Errorf("%w: %q", ErrMalformed, body)
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, arr[0])
	}
}

// ParseAll decodes every message found in a chunk of text.
//
// The chunk is split on newlines. Lines in the legacy form are further split
// on the legacy body separator so that several "-sub|..." commands glued
// together in one line are all recovered. Lines that fail to parse are
// reported in errs and skipped.
func ParseAll(chunk string) (cmds []Command, errs []error) {
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, legacyBodySplit) {
			cmd, err := Parse(line)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			cmds = append(cmds, cmd)
			continue
		}

		for _, body := range strings.Split(line, legacyBodySplit) {
			if body == "" {
				continue
			}
			cmd, err := parseLegacy(body)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			cmds = append(cmds, cmd)
		}
	}
	return cmds, errs
}
