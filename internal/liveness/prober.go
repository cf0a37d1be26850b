package liveness

import (
	"context"
	"net"

	"github.com/jackpal/gateway"
)

// Prober reports whether the host currently has network connectivity.
//
// An error means the probe itself could not run. Callers treat that as
// reachable.
type Prober interface {
	Reachable(ctx context.Context) (bool, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) (bool, error)

// Reachable implements Prober.
func (f ProberFunc) Reachable(ctx context.Context) (bool, error) {
	return f(ctx)
}

// AlwaysReachable is a Prober for platforms with no usable probe.
var AlwaysReachable Prober = ProberFunc(func(context.Context) (bool, error) {
	return true, nil
})

// SystemProber decides reachability from the host's routing and interface
// state.
//
// The network counts as reachable when a default gateway can be discovered,
// or failing that when at least one non-loopback interface is up and holds
// an address. If the interface list itself cannot be read the probe returns
// an error.
type SystemProber struct {
	discoverGateway func() (net.IP, error)
	interfaces      func() ([]net.Interface, error)
	addrs           func(net.Interface) ([]net.Addr, error)
}

// NewSystemProber creates a prober backed by the OS routing table and
// interface list.
func NewSystemProber() *SystemProber {
	return &SystemProber{
		discoverGateway: gateway.DiscoverGateway,
		interfaces:      net.Interfaces,
		addrs: func(iface net.Interface) ([]net.Addr, error) {
			return iface.Addrs()
		},
	}
}

// Reachable implements Prober.
func (p *SystemProber) Reachable(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}

	if ip, err := p.discoverGateway(); err == nil && ip != nil && !ip.IsUnspecified() {
		return true, nil
	}

	ifaces, err := p.interfaces()
	if err != nil {
		return true, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := p.addrs(iface)
		if err != nil {
			continue
		}
		if len(addrs) > 0 {
			return true, nil
		}
	}
	return false, nil
}
