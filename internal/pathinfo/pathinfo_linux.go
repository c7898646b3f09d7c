//go:build linux

package pathinfo

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

func routeInfo(dst net.IP) (Info, error) {
	routes, err := netlink.RouteGet(dst)
	if err != nil {
		return Info{}, err
	}
	if len(routes) == 0 {
		return Info{}, errors.New("no route")
	}
	route := routes[0]
	link, err := netlink.LinkByIndex(route.LinkIndex)
	if err != nil {
		return Info{}, fmt.Errorf("link %d: %w", route.LinkIndex, err)
	}
	attrs := link.Attrs()
	info := Info{
		Interface: attrs.Name,
		MTU:       attrs.MTU,
		Gateway:   route.Gw,
		Src:       route.Src,
	}
	qdiscs, err := netlink.QdiscList(link)
	if err != nil {
		return Info{}, fmt.Errorf("qdiscs on %s: %w", attrs.Name, err)
	}
	info.Qdisc = rootQdisc(qdiscs)
	return info, nil
}

func rootQdisc(qdiscs []netlink.Qdisc) string {
	for _, q := range qdiscs {
		if q.Attrs().Parent == netlink.HANDLE_ROOT {
			return q.Type()
		}
	}
	return ""
}
