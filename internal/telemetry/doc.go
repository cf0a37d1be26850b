// Package telemetry exports tcplink state as Prometheus metrics.
//
// Link and peer counters are read on scrape from their Stats snapshots;
// link events are counted as they are dispatched.
//
//	m := telemetry.New(version)
//	client.Observe(m.ObserveLinkEvent)
//	m.RegisterLink(client)
//	mux.Handle("/metrics", m.Handler())
package telemetry
