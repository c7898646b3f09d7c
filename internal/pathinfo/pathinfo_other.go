//go:build !linux

package pathinfo

import (
	"fmt"
	"net"

	"github.com/jackpal/gateway"
)

// routeInfo falls back to the default route: the gateway and the interface
// holding the default source address. dst is not consulted and the qdisc is
// left empty.
func routeInfo(_ net.IP) (Info, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	src, err := gateway.DiscoverInterface()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	info := Info{Gateway: gw, Src: src}
	if iface, err := interfaceByIP(src); err == nil {
		info.Interface = iface.Name
		info.MTU = iface.MTU
	}
	return info, nil
}

func interfaceByIP(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %s", ip)
}
