package link

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// maxPort is the highest valid TCP port.
const maxPort = 65535

// EndpointSet is the ordered, non-empty list of candidate remote addresses
// sharing one port.
//
// The zero value is not valid; build one with NewEndpointSet,
// EndpointFromAddrPort or ResolveEndpoints. An EndpointSet is immutable.
type EndpointSet struct {
	addrs []netip.Addr
	port  uint16
}

// Resolver looks up the addresses of a host name.
// *net.Resolver satisfies this interface.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// NewEndpointSet builds an endpoint set from literal addresses.
//
// IPv4-mapped IPv6 addresses are unmapped. Order is preserved.
//
// Returns:
//   - EndpointSet: The validated set
//   - error: ErrNoEndpoints, ErrInvalidPort, or an invalid address error
func NewEndpointSet(addrs []netip.Addr, port int) (EndpointSet, error) {
	if len(addrs) == 0 {
		return EndpointSet{}, ErrNoEndpoints
	}
	if port < 1 || port > maxPort {
		return EndpointSet{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if !a.IsValid() {
			return EndpointSet{}, fmt.Errorf("link: invalid address in endpoint set")
		}
		out = append(out, a.Unmap())
	}

	return EndpointSet{addrs: out, port: uint16(port)}, nil //nolint:gosec // range checked above
}

// EndpointFromAddrPort builds a single-address endpoint set.
func EndpointFromAddrPort(ap netip.AddrPort) (EndpointSet, error) {
	return NewEndpointSet([]netip.Addr{ap.Addr()}, int(ap.Port()))
}

// ResolveEndpoints builds an endpoint set from host strings.
//
// Each host is either a literal IP address or a name resolved through r.
// Results are concatenated in host order with duplicates removed. A host
// that fails to resolve is an error; resolution happens once, here.
//
// Parameters:
//   - ctx: Context for the lookups
//   - r: Resolver for host names (net.DefaultResolver in production)
//   - hosts: Literal addresses or host names
//   - port: Remote port shared by every address
//
// Returns:
//   - EndpointSet: The resolved set
//   - error: If any lookup fails or the result is empty
func ResolveEndpoints(ctx context.Context, r Resolver, hosts []string, port int) (EndpointSet, error) {
	seen := make(map[netip.Addr]bool)
	var addrs []netip.Addr

	add := func(a netip.Addr) {
		a = a.Unmap()
		if !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}

	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}

		if a, err := netip.ParseAddr(host); err == nil {
			add(a)
			continue
		}

		found, err := r.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return EndpointSet{}, fmt.Errorf("resolving %q: %w", host, err)
		}
		for _, a := range found {
			add(a)
		}
	}

	return NewEndpointSet(addrs, port)
}

// Addrs returns a copy of the candidate addresses in order.
func (e EndpointSet) Addrs() []netip.Addr {
	out := make([]netip.Addr, len(e.addrs))
	copy(out, e.addrs)
	return out
}

// Port returns the remote port.
func (e EndpointSet) Port() int {
	return int(e.port)
}

// Len returns the number of candidate addresses.
func (e EndpointSet) Len() int {
	return len(e.addrs)
}

// First returns the first candidate as an address-port pair.
// It returns the zero AddrPort for an empty (invalid) set.
func (e EndpointSet) First() netip.AddrPort {
	if len(e.addrs) == 0 {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(e.addrs[0], e.port)
}

// AddrPorts returns every candidate as an address-port pair, in order.
func (e EndpointSet) AddrPorts() []netip.AddrPort {
	out := make([]netip.AddrPort, len(e.addrs))
	for i, a := range e.addrs {
		out[i] = netip.AddrPortFrom(a, e.port)
	}
	return out
}

// String renders the set as "[a b c]:port".
func (e EndpointSet) String() string {
	parts := make([]string, len(e.addrs))
	for i, a := range e.addrs {
		parts[i] = a.String()
	}
	return fmt.Sprintf("[%s]:%d", strings.Join(parts, " "), e.port)
}
