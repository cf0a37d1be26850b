// Package link provides a resilient client for one point-to-point TCP stream.
//
// A Client holds an ordered set of candidate remote addresses and a single
// port. Connect tries the addresses in order and keeps the first that
// accepts. A failed attempt is retried after a flat interval up to a bounded
// number of times; once the bound is exceeded the client reports a
// permanent failure and waits.
//
// A liveness monitor runs for the whole life of the client. When the host
// network comes back after an outage it emits a reconnect-requested event,
// and if automatic reconnect is armed the client calls Connect itself. This
// is how a client resurrects itself after retries are exhausted.
//
// Inbound bytes are decoded with the configured text encoding and delivered
// as data-arrived events. Outbound payloads are queued per connection and
// written by a single goroutine. Subscribe and Publish build the text
// convention described in package wire.
//
// The stream carries no framing by default, so one read may hold part of a
// message or several messages. Set Config.Framing to wire.FramingLine to
// terminate every send with '\n' and split reads on it.
//
// Example:
//
//	eps, _ := link.ResolveEndpoints(ctx, net.DefaultResolver, []string{"broker.lan"}, 8082)
//	c, err := link.New(link.Config{Endpoints: eps, AutoReconnect: true})
//	if err != nil {
//	    return err
//	}
//	defer c.Shutdown()
//	c.OnDataArrived(func(remote netip.AddrPort, msg string) {
//	    fmt.Println(remote, msg)
//	})
//	c.Connect()
package link
