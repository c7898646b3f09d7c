package pathinfo

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fakeRoute(info Info, err error, got *net.IP) routeFunc {
	return func(dst net.IP) (Info, error) {
		*got = dst
		return info, err
	}
}

func TestLookupLiteralSkipsResolver(t *testing.T) {
	resolve := func(context.Context, string) ([]net.IPAddr, error) {
		t.Fatalf("resolver called for a literal address")
		return nil, nil
	}
	var dst net.IP
	route := fakeRoute(Info{Interface: "eth0", MTU: 1500, Qdisc: "fq_codel"}, nil, &dst)

	info, err := lookup(context.Background(), "192.0.2.10", resolve, route)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	want := Info{
		Target:    "192.0.2.10",
		Dst:       net.ParseIP("192.0.2.10"),
		Interface: "eth0",
		MTU:       1500,
		Qdisc:     "fq_codel",
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("info mismatch (-want +got):\n%s", diff)
	}
	if !dst.Equal(net.ParseIP("192.0.2.10")) {
		t.Fatalf("routed %v", dst)
	}
}

func TestLookupUsesFirstResolvedAddress(t *testing.T) {
	resolve := func(_ context.Context, host string) ([]net.IPAddr, error) {
		if host != "netperf.example.net" {
			t.Fatalf("resolved %q", host)
		}
		return []net.IPAddr{{IP: net.ParseIP("2001:db8::1")}, {IP: net.ParseIP("192.0.2.1")}}, nil
	}
	var dst net.IP
	route := fakeRoute(Info{Interface: "wlan0", Qdisc: "cake"}, nil, &dst)

	info, err := lookup(context.Background(), "netperf.example.net", resolve, route)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !dst.Equal(net.ParseIP("2001:db8::1")) {
		t.Fatalf("routed %v, want first address", dst)
	}
	if info.Target != "netperf.example.net" || info.Interface != "wlan0" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestLookupErrors(t *testing.T) {
	noRoute := func(net.IP) (Info, error) {
		return Info{}, errors.New("network is unreachable")
	}
	okRoute := func(net.IP) (Info, error) { return Info{}, nil }
	tests := []struct {
		name    string
		host    string
		resolve resolveFunc
		route   routeFunc
		want    string
	}{
		{
			name: "resolve failure",
			host: "nowhere.invalid",
			resolve: func(context.Context, string) ([]net.IPAddr, error) {
				return nil, errors.New("no such host")
			},
			route: okRoute,
			want:  "resolve nowhere.invalid",
		},
		{
			name: "no addresses",
			host: "empty.example",
			resolve: func(context.Context, string) ([]net.IPAddr, error) {
				return nil, nil
			},
			route: okRoute,
			want:  "no addresses",
		},
		{
			name:  "no route",
			host:  "198.51.100.4",
			route: noRoute,
			want:  "route to 198.51.100.4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lookup(context.Background(), tt.host, tt.resolve, tt.route)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
}
