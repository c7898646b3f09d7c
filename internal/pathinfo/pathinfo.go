// Package pathinfo reports the local side of the path to a host: the egress
// interface the kernel routes through and the root queueing discipline on it.
// The qdisc is what decides how much a saturated uplink buffers.
package pathinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnsupported is wrapped when the platform fallback cannot find a default
// route.
var ErrUnsupported = errors.New("path inspection unsupported")

// Info describes the egress path towards Target.
type Info struct {
	Target    string `json:"target"`
	Dst       net.IP `json:"dst"`
	Interface string `json:"interface"`
	MTU       int    `json:"mtu"`
	Gateway   net.IP `json:"gateway,omitempty"`
	Src       net.IP `json:"src,omitempty"`
	// Qdisc is the kind of the root qdisc, e.g. fq_codel, cake, noqueue.
	Qdisc string `json:"qdisc,omitempty"`
}

type resolveFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

type routeFunc func(dst net.IP) (Info, error)

// Lookup resolves host and inspects the route towards its first address.
func Lookup(ctx context.Context, host string) (Info, error) {
	return lookup(ctx, host, net.DefaultResolver.LookupIPAddr, routeInfo)
}

func lookup(ctx context.Context, host string, resolve resolveFunc, route routeFunc) (Info, error) {
	dst := net.ParseIP(host)
	if dst == nil {
		addrs, err := resolve(ctx, host)
		if err != nil {
			return Info{}, fmt.Errorf("resolve %s: %w", host, err)
		}
		if len(addrs) == 0 {
			return Info{}, fmt.Errorf("resolve %s: no addresses", host)
		}
		dst = addrs[0].IP
	}
	info, err := route(dst)
	if err != nil {
		return Info{}, fmt.Errorf("route to %s: %w", dst, err)
	}
	info.Target = host
	info.Dst = dst
	return info, nil
}
