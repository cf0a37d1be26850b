// Package liveness watches host-level network reachability and signals the
// moment the network comes back.
//
// A Monitor polls a Prober at a fixed cadence (1 second by default) for its
// whole lifetime. It keeps one bit of edge state, "the network was observed
// down on an earlier tick". When a tick finds the network reachable and the
// bit set, the bit is cleared and one signal is sent on the Reachable channel.
// A run of reachable ticks with no unreachable tick in between sends nothing.
//
//	mon := liveness.New(liveness.Config{})
//	mon.Start(ctx)
//	defer mon.Stop()
//
//	for range mon.Reachable() {
//	    client.Connect()
//	}
//
// The monitor only detects and notifies. What to do with the signal is up to
// the receiver. A Prober that fails, or one running on a platform where no
// probe is available, is treated as "reachable" so the monitor never takes
// the process down.
package liveness
