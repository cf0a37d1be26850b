package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tcplink/internal/link"
	"github.com/nerrad567/tcplink/internal/peer"
)

type recordingPublisher struct {
	mu    sync.Mutex
	msgs  []fakePublish
	err   error
	block chan struct{}
}

func (p *recordingPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, fakePublish{topic: topic, qos: qos, retained: retained, payload: payload})
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func testRecord(t *testing.T) *peer.Record {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return peer.NewRecord(a, 7, 64, time.Now())
}

func TestPeerForwarder_Forward(t *testing.T) {
	pub := &recordingPublisher{}
	fwd := NewPeerForwarder(pub, Topics{Prefix: "lab"}, 1)
	rec := testRecord(t)

	if err := fwd.Forward(context.Background(), rec, "weather", "sunny#warm"); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if pub.count() != 1 {
		t.Fatalf("published %d messages, want 1", pub.count())
	}
	got := pub.msgs[0]
	if got.topic != "lab/topics/weather" || got.qos != 1 || got.retained {
		t.Errorf("published to %q qos=%d retained=%v", got.topic, got.qos, got.retained)
	}

	var msg PeerMessage
	if err := json.Unmarshal(got.payload, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Topic != "weather" || msg.Message != "sunny#warm" || msg.Session != rec.ID.String() {
		t.Errorf("payload = %+v", msg)
	}
}

func TestPeerForwarder_Errors(t *testing.T) {
	pub := &recordingPublisher{err: ErrNotConnected}
	fwd := NewPeerForwarder(pub, Topics{}, 0)
	rec := testRecord(t)

	if err := fwd.Forward(context.Background(), rec, "a", "b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Forward() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fwd.Forward(ctx, rec, "a", "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("Forward(cancelled) error = %v", err)
	}
}

func waitCount(t *testing.T, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !fn() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventPublisher_PublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	ep := NewEventPublisher(pub, Topics{Prefix: "lab"}, "edge-1", 0, 0)
	defer ep.Close()

	remote := netip.MustParseAddrPort("192.0.2.10:8082")
	ep.HandleEvent(link.Event{Kind: link.EventConnected, Remote: remote, Time: time.Now()})
	ep.HandleEvent(link.Event{Kind: link.EventConnectFailed, Attempt: 2, Err: errors.New("refused"), Time: time.Now()})

	waitCount(t, "two events", func() bool { return pub.count() == 2 })

	pub.mu.Lock()
	first, second := pub.msgs[0], pub.msgs[1]
	pub.mu.Unlock()

	if first.topic != "lab/events/edge-1" {
		t.Errorf("topic = %q", first.topic)
	}
	var m1, m2 EventMessage
	if err := json.Unmarshal(first.payload, &m1); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(second.payload, &m2); err != nil {
		t.Fatal(err)
	}
	if m1.Kind != "connected" || m1.Remote != "192.0.2.10:8082" || m1.Error != "" {
		t.Errorf("first = %+v", m1)
	}
	if m2.Kind != "connect-failed" || m2.Attempt != 2 || m2.Error != "refused" || m2.Remote != "" {
		t.Errorf("second = %+v", m2)
	}

	if published, dropped, failed := ep.Counts(); published != 2 || dropped != 0 || failed != 0 {
		t.Errorf("Counts() = %d, %d, %d", published, dropped, failed)
	}
}

func TestEventPublisher_DropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	ep := NewEventPublisher(pub, Topics{}, "c", 0, 1)
	defer ep.Close()

	// The worker takes the first event and blocks in Publish; the second
	// fills the queue and the rest are dropped.
	ep.HandleEvent(link.Event{Kind: link.EventConnecting})
	waitCount(t, "worker to pick up first event", func() bool { return len(ep.queue) == 0 })
	for range 5 {
		ep.HandleEvent(link.Event{Kind: link.EventConnecting})
	}

	if _, dropped, _ := ep.Counts(); dropped != 4 {
		t.Errorf("dropped = %d, want 4", dropped)
	}
	close(pub.block)
}

func TestEventPublisher_CountsFailures(t *testing.T) {
	pub := &recordingPublisher{err: ErrNotConnected}
	ep := NewEventPublisher(pub, Topics{}, "c", 0, 0)
	logger := &captureLogger{}
	ep.SetLogger(logger)
	defer ep.Close()

	ep.HandleEvent(link.Event{Kind: link.EventClosed})
	waitCount(t, "failure", func() bool {
		_, _, failed := ep.Counts()
		return failed == 1
	})

	ep.Close()
	ep.HandleEvent(link.Event{Kind: link.EventClosed})
	if _, dropped, _ := ep.Counts(); dropped != 0 {
		t.Errorf("event after Close() counted as dropped")
	}
}
