package mqtt

import (
	"errors"
	"testing"
)

type capturingSubscriber struct {
	filter  string
	qos     byte
	handler MessageHandler
	err     error
}

func (s *capturingSubscriber) Subscribe(topic string, qos byte, handler MessageHandler) error {
	s.filter, s.qos, s.handler = topic, qos, handler
	return s.err
}

type recordingLink struct {
	sent []string
	subs []string
	pubs []PublishCommand
	err  error
}

func (l *recordingLink) SendString(s string) error {
	l.sent = append(l.sent, s)
	return l.err
}

func (l *recordingLink) Subscribe(topic string) error {
	l.subs = append(l.subs, topic)
	return l.err
}

func (l *recordingLink) Publish(topic, message string) error {
	l.pubs = append(l.pubs, PublishCommand{Topic: topic, Message: message})
	return l.err
}

func TestListenCommands(t *testing.T) {
	sub := &capturingSubscriber{}
	lk := &recordingLink{}
	topics := Topics{Prefix: "lab"}

	in, err := ListenCommands(sub, topics, "edge-1", 1, lk)
	if err != nil {
		t.Fatalf("ListenCommands() error = %v", err)
	}
	if sub.filter != "lab/commands/edge-1/+" || sub.qos != 1 {
		t.Fatalf("subscribed to %q qos %d", sub.filter, sub.qos)
	}

	steps := []struct {
		verb    string
		payload string
		wantErr error
	}{
		{CommandSend, "hello#world", nil},
		{CommandSubscribe, " weather ", nil},
		{CommandPublish, `{"topic":"weather","message":"sunny"}`, nil},
		{CommandPublish, `{"message":"no topic"}`, ErrBadCommand},
		{CommandPublish, `{`, ErrBadCommand},
		{CommandSubscribe, "", ErrBadCommand},
		{"reboot", "", ErrUnknownCommand},
	}
	for _, s := range steps {
		err := sub.handler(topics.ClientCommand("edge-1", s.verb), []byte(s.payload))
		if !errors.Is(err, s.wantErr) {
			t.Errorf("%s %q error = %v, want %v", s.verb, s.payload, err, s.wantErr)
		}
	}

	if len(lk.sent) != 1 || lk.sent[0] != "hello#world" {
		t.Errorf("sent = %v", lk.sent)
	}
	if len(lk.subs) != 1 || lk.subs[0] != "weather" {
		t.Errorf("subscribed = %v", lk.subs)
	}
	if len(lk.pubs) != 1 || lk.pubs[0] != (PublishCommand{Topic: "weather", Message: "sunny"}) {
		t.Errorf("published = %v", lk.pubs)
	}
	if handled, failed := in.Counts(); handled != 3 || failed != 4 {
		t.Errorf("Counts() = %d, %d, want 3, 4", handled, failed)
	}
}

func TestListenCommands_LinkErrorsAreReturned(t *testing.T) {
	sub := &capturingSubscriber{}
	boom := errors.New("not connected")
	lk := &recordingLink{err: boom}

	if _, err := ListenCommands(sub, Topics{}, "edge-1", 0, lk); err != nil {
		t.Fatalf("ListenCommands() error = %v", err)
	}
	if err := sub.handler("tcplink/commands/edge-1/send", []byte("x")); !errors.Is(err, boom) {
		t.Errorf("handler error = %v, want link error", err)
	}
}

func TestListenCommands_SubscribeFails(t *testing.T) {
	sub := &capturingSubscriber{err: ErrNotConnected}
	if _, err := ListenCommands(sub, Topics{}, "edge-1", 0, &recordingLink{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ListenCommands() error = %v, want ErrNotConnected", err)
	}
}
