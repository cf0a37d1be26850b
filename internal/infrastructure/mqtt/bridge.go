package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tcplink/internal/link"
	"github.com/nerrad567/tcplink/internal/peer"
)

// Publisher is the publishing side of a Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// PeerMessage is the payload forwarded for a peer publish command.
type PeerMessage struct {
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	Session   string    `json:"session"`
	Remote    string    `json:"remote"`
	Timestamp time.Time `json:"timestamp"`
}

// PeerForwarder publishes peer publish commands to the broker under
// Topics.PeerTopic. It implements peer.Forwarder.
type PeerForwarder struct {
	pub    Publisher
	topics Topics
	qos    byte
}

// NewPeerForwarder creates a forwarder publishing through pub.
func NewPeerForwarder(pub Publisher, topics Topics, qos byte) *PeerForwarder {
	return &PeerForwarder{pub: pub, topics: topics, qos: qos}
}

// Forward implements peer.Forwarder.
func (f *PeerForwarder) Forward(ctx context.Context, from *peer.Record, topic, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(PeerMessage{
		Topic:     topic,
		Message:   message,
		Session:   from.ID.String(),
		Remote:    from.Remote.String(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding peer message: %w", err)
	}
	return f.pub.Publish(f.topics.PeerTopic(topic), payload, f.qos, false)
}

// EventMessage is the payload published for a stream client event.
type EventMessage struct {
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	Remote    string    `json:"remote,omitempty"`
	Message   string    `json:"message,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func eventMessage(ev link.Event) EventMessage {
	msg := EventMessage{
		Kind:      string(ev.Kind),
		Severity:  ev.Severity.String(),
		Message:   ev.Message,
		Attempt:   ev.Attempt,
		Timestamp: ev.Time.UTC(),
	}
	if ev.Remote.IsValid() {
		msg.Remote = ev.Remote.String()
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// defaultEventBuffer bounds the events waiting to be published.
const defaultEventBuffer = 256

// EventPublisher mirrors stream client events to the broker.
//
// HandleEvent never blocks: events are queued and published by a single
// worker, and dropped when the queue is full.
//
// Thread Safety:
//   - HandleEvent is safe for concurrent use.
type EventPublisher struct {
	pub   Publisher
	topic string
	qos   byte

	queue     chan link.Event
	done      chan struct{}
	closeOnce sync.Once

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewEventPublisher starts a publisher for the events of clientID.
//
// Parameters:
//   - pub: Broker publisher
//   - topics: Topic builder
//   - clientID: Names the event topic
//   - qos: QoS for event messages
//   - buffer: Queue length; zero or negative uses 256
func NewEventPublisher(pub Publisher, topics Topics, clientID string, qos byte, buffer int) *EventPublisher {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	p := &EventPublisher{
		pub:   pub,
		topic: topics.ClientEvents(clientID),
		qos:   qos,
		queue: make(chan link.Event, buffer),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// SetLogger sets a logger for publish failures.
func (p *EventPublisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// HandleEvent queues ev. It has the link.Listener signature.
func (p *EventPublisher) HandleEvent(ev link.Event) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
}

func (p *EventPublisher) run() {
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.queue:
			p.publish(ev)
		}
	}
}

func (p *EventPublisher) publish(ev link.Event) {
	payload, err := json.Marshal(eventMessage(ev))
	if err == nil {
		err = p.pub.Publish(p.topic, payload, p.qos, false)
	}
	if err != nil {
		p.failed.Add(1)
		p.loggerMu.RLock()
		logger := p.logger
		p.loggerMu.RUnlock()
		if logger != nil {
			logger.Warn("publishing link event failed", "kind", string(ev.Kind), "error", err)
		}
		return
	}
	p.published.Add(1)
}

// Close stops the worker. Queued events are discarded.
func (p *EventPublisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Counts returns the published, dropped and failed event totals.
func (p *EventPublisher) Counts() (published, dropped, failed uint64) {
	return p.published.Load(), p.dropped.Load(), p.failed.Load()
}
