package link

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

type fakeResolver map[string][]netip.Addr

func (r fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func TestNewEndpointSet(t *testing.T) {
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	mapped := netip.MustParseAddr("::ffff:10.0.0.3")

	tests := []struct {
		name    string
		addrs   []netip.Addr
		port    int
		wantErr error
		want    []netip.Addr
	}{
		{name: "empty", port: 80, wantErr: ErrNoEndpoints},
		{name: "port zero", addrs: []netip.Addr{a}, port: 0, wantErr: ErrInvalidPort},
		{name: "port too high", addrs: []netip.Addr{a}, port: 70000, wantErr: ErrInvalidPort},
		{name: "order kept", addrs: []netip.Addr{b, a}, port: 8082, want: []netip.Addr{b, a}},
		{name: "mapped unmapped", addrs: []netip.Addr{mapped}, port: 8082, want: []netip.Addr{netip.MustParseAddr("10.0.0.3")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eps, err := NewEndpointSet(tt.addrs, tt.port)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewEndpointSet() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEndpointSet() error = %v", err)
			}

			got := eps.Addrs()
			if len(got) != len(tt.want) {
				t.Fatalf("Addrs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Addrs()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if eps.Port() != tt.port {
				t.Errorf("Port() = %d, want %d", eps.Port(), tt.port)
			}
		})
	}
}

func TestEndpointSet_IsImmutable(t *testing.T) {
	in := []netip.Addr{netip.MustParseAddr("10.0.0.1")}
	eps, err := NewEndpointSet(in, 9000)
	if err != nil {
		t.Fatalf("NewEndpointSet() error = %v", err)
	}

	in[0] = netip.MustParseAddr("10.9.9.9")
	out := eps.Addrs()
	out[0] = netip.MustParseAddr("10.8.8.8")

	if got := eps.First(); got != netip.MustParseAddrPort("10.0.0.1:9000") {
		t.Errorf("First() = %v after caller mutation", got)
	}
}

func TestEndpointFromAddrPort(t *testing.T) {
	eps, err := EndpointFromAddrPort(netip.MustParseAddrPort("192.168.1.20:8082"))
	if err != nil {
		t.Fatalf("EndpointFromAddrPort() error = %v", err)
	}
	if eps.Len() != 1 || eps.Port() != 8082 {
		t.Errorf("got %s", eps)
	}
	if eps.String() != "[192.168.1.20]:8082" {
		t.Errorf("String() = %q", eps.String())
	}
}

func TestResolveEndpoints(t *testing.T) {
	r := fakeResolver{
		"broker.lan": {netip.MustParseAddr("10.0.0.5"), netip.MustParseAddr("10.0.0.6")},
		"backup.lan": {netip.MustParseAddr("10.0.0.6"), netip.MustParseAddr("10.0.0.7")},
	}

	eps, err := ResolveEndpoints(context.Background(), r, []string{"10.0.0.1", "broker.lan", " ", "backup.lan"}, 8082)
	if err != nil {
		t.Fatalf("ResolveEndpoints() error = %v", err)
	}

	want := []string{"10.0.0.1", "10.0.0.5", "10.0.0.6", "10.0.0.7"}
	got := eps.Addrs()
	if len(got) != len(want) {
		t.Fatalf("Addrs() = %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i].String() != w {
			t.Errorf("Addrs()[%d] = %v, want %s", i, got[i], w)
		}
	}
}

func TestResolveEndpoints_Errors(t *testing.T) {
	r := fakeResolver{}

	if _, err := ResolveEndpoints(context.Background(), r, []string{"missing.lan"}, 8082); err == nil {
		t.Error("expected lookup error")
	}
	if _, err := ResolveEndpoints(context.Background(), r, nil, 8082); !errors.Is(err, ErrNoEndpoints) {
		t.Errorf("empty hosts error = %v, want ErrNoEndpoints", err)
	}
}
