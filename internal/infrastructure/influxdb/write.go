package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tcplink/internal/link"
	"github.com/nerrad567/tcplink/internal/peer"
)

// Measurement names.
const (
	measurementLinkEvents = "link_events"
	measurementLinkStats  = "link_stats"
	measurementPeerStats  = "peer_stats"
)

// WriteLinkEvent records one stream client event. Data-arrived events carry
// the payload size rather than the text. It has the link.Listener signature.
func (c *Client) WriteLinkEvent(ev link.Event) {
	c.writePoint(linkEventPoint(ev))
}

// WriteLinkStats records a snapshot of stream client counters.
//
// Parameters:
//   - clientID: Tag identifying the client
//   - stats: Counter snapshot
func (c *Client) WriteLinkStats(clientID string, stats link.Stats) {
	c.writePoint(linkStatsPoint(clientID, stats, time.Now()))
}

// WritePeerStats records a snapshot of peer server counters.
func (c *Client) WritePeerStats(listen string, stats peer.Stats) {
	c.writePoint(peerStatsPoint(listen, stats, time.Now()))
}

func linkEventPoint(ev link.Event) *write.Point {
	tags := map[string]string{
		"kind":     string(ev.Kind),
		"severity": ev.Severity.String(),
	}
	if ev.Remote.IsValid() {
		tags["remote"] = ev.Remote.String()
	}

	fields := map[string]interface{}{
		"attempt": ev.Attempt,
	}
	if ev.Kind == link.EventDataArrived {
		fields["bytes"] = len(ev.Message)
	}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
	}

	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(measurementLinkEvents, tags, fields, at)
}

func linkStatsPoint(clientID string, s link.Stats, at time.Time) *write.Point {
	return write.NewPoint(measurementLinkStats,
		map[string]string{"client": clientID},
		map[string]interface{}{
			"state":              s.State.String(),
			"retries":            s.Retries,
			"connects":           s.Connects,
			"connect_failures":   s.ConnectFailures,
			"permanent_failures": s.PermanentFailures,
			"closes":             s.Closes,
			"reconnect_requests": s.ReconnectRequests,
			"bytes_received":     s.BytesReceived,
			"bytes_sent":         s.BytesSent,
			"messages_received":  s.MessagesReceived,
			"sends_queued":       s.SendsQueued,
			"read_errors":        s.ReadErrors,
			"write_errors":       s.WriteErrors,
		},
		at,
	)
}

func peerStatsPoint(listen string, s peer.Stats, at time.Time) *write.Point {
	return write.NewPoint(measurementPeerStats,
		map[string]string{"listen": listen},
		map[string]interface{}{
			"accepted":       s.Accepted,
			"active":         s.Active,
			"subscriptions":  s.Subscriptions,
			"publishes":      s.Publishes,
			"parse_errors":   s.ParseErrors,
			"forward_errors": s.ForwardErrors,
			"store_errors":   s.StoreErrors,
		},
		at,
	)
}
