// Package influxdb records tcplink time series in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library and writes three
// measurements:
//   - link_events: one point per stream client event, tagged by kind
//   - link_stats: periodic snapshots of stream client counters
//   - peer_stats: periodic snapshots of peer server counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	link.Observe(client.WriteLinkEvent)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched (batch_size, flush_interval); write
// failures are reported through SetOnError.
package influxdb
