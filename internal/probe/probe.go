// Package probe measures round-trip times with unprivileged ICMP echo
// requests sent at a fixed cadence.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sync/errgroup"

	"github.com/NodePath81/betterspeedtest/internal/stats"
	"github.com/NodePath81/betterspeedtest/internal/util"
)

// ErrProbeFailure is wrapped when the target cannot be resolved, the socket
// cannot be opened, an echo cannot be sent, or no reply arrives at all.
var ErrProbeFailure = errors.New("probe failure")

const (
	defaultTimeout = 2 * time.Second
	// readPoll bounds each blocking read so the receiver notices the end of
	// the window and cancellation.
	readPoll = 100 * time.Millisecond
)

// Request describes one probe run.
type Request struct {
	Target   string
	Count    int
	Interval time.Duration
	// Timeout is how long a reply may take before the echo counts as lost.
	Timeout time.Duration
}

// Result is the frozen output of a probe run.
type Result struct {
	Target string
	Addr   net.IP
	stats.Samples
	PacketsRecv int
	Duration    time.Duration
}

type packetConn interface {
	WriteTo(b []byte, dst net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type endpoint struct {
	network   string
	proto     int
	echoType  icmp.Type
	replyType icmp.Type
}

var (
	endpointV4 = endpoint{
		network:   "udp4",
		proto:     1,
		echoType:  ipv4.ICMPTypeEcho,
		replyType: ipv4.ICMPTypeEchoReply,
	}
	endpointV6 = endpoint{
		network:   "udp6",
		proto:     58,
		echoType:  ipv6.ICMPTypeEchoRequest,
		replyType: ipv6.ICMPTypeEchoReply,
	}
)

// ICMPProber sends echo requests over datagram ICMP sockets, which Linux
// and macOS allow without elevated privileges.
type ICMPProber struct {
	logger util.Logger
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
	listen func(network string) (packetConn, error)
}

func NewICMPProber(logger util.Logger) *ICMPProber {
	return &ICMPProber{
		logger: logger,
		lookup: net.DefaultResolver.LookupIPAddr,
		listen: func(network string) (packetConn, error) {
			conn, err := icmp.ListenPacket(network, "")
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
}

// Probe sends req.Count echoes req.Interval apart and blocks until every
// reply has arrived or the last echo has timed out.
func (p *ICMPProber) Probe(ctx context.Context, req Request) (Result, error) {
	if req.Count <= 0 {
		return Result{}, fmt.Errorf("%w: count must be > 0", ErrProbeFailure)
	}
	if req.Interval <= 0 {
		return Result{}, fmt.Errorf("%w: interval must be > 0", ErrProbeFailure)
	}
	if req.Timeout <= 0 {
		req.Timeout = defaultTimeout
	}

	addr, err := p.resolve(ctx, req.Target)
	if err != nil {
		return Result{}, err
	}
	ep := endpointV4
	if addr.IP.To4() == nil {
		ep = endpointV6
	}
	conn, err := p.listen(ep.network)
	if err != nil {
		return Result{}, fmt.Errorf("%w: open %s icmp socket: %v", ErrProbeFailure, ep.network, err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: addr.IP, Zone: addr.Zone}
	tracker := uuid.New()
	col := newCollector(req.Count, req.Timeout)
	sendDone := make(chan struct{})

	p.logger.Debug().
		Str("target", req.Target).
		Str("addr", addr.String()).
		Int("count", req.Count).
		Dur("interval", req.Interval).
		Str("tracker", tracker.String()).
		Msg("probe started")

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(sendDone)
		return send(gctx, conn, dst, ep, tracker, req, col)
	})
	g.Go(func() error {
		return receive(gctx, conn, ep, tracker, req.Timeout, col, sendDone)
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{
		Target:   req.Target,
		Addr:     addr.IP,
		Samples:  col.samples(),
		Duration: time.Since(start),
	}
	res.PacketsRecv = len(res.RTTs)
	p.logger.Debug().
		Str("target", req.Target).
		Int("sent", res.PacketsSent).
		Int("recv", res.PacketsRecv).
		Dur("elapsed", res.Duration).
		Msg("probe finished")
	if res.PacketsRecv == 0 {
		return Result{}, fmt.Errorf("%w: no reply from %s (%d echoes sent)", ErrProbeFailure, req.Target, res.PacketsSent)
	}
	return res, nil
}

func (p *ICMPProber) resolve(ctx context.Context, host string) (net.IPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return net.IPAddr{IP: ip}, nil
	}
	addrs, err := p.lookup(ctx, host)
	if err != nil {
		return net.IPAddr{}, fmt.Errorf("%w: resolve %s: %v", ErrProbeFailure, host, err)
	}
	if len(addrs) == 0 {
		return net.IPAddr{}, fmt.Errorf("%w: resolve %s: no addresses", ErrProbeFailure, host)
	}
	return addrs[0], nil
}

func send(ctx context.Context, conn packetConn, dst net.Addr, ep endpoint, tracker uuid.UUID, req Request, col *collector) error {
	id := os.Getpid() & 0xffff
	ticker := time.NewTicker(req.Interval)
	defer ticker.Stop()
	for i := 0; i < req.Count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		payload, err := marshalEcho(ep, id, i, tracker)
		if err != nil {
			return fmt.Errorf("%w: marshal echo: %v", ErrProbeFailure, err)
		}
		col.markSent(i, time.Now())
		if _, err := conn.WriteTo(payload, dst); err != nil {
			return fmt.Errorf("%w: send to %s: %v", ErrProbeFailure, dst, err)
		}
	}
	return nil
}

func receive(ctx context.Context, conn packetConn, ep endpoint, tracker uuid.UUID, timeout time.Duration, col *collector, sendDone <-chan struct{}) error {
	buf := make([]byte, 1500)
	var deadline time.Time
	for !col.complete() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if deadline.IsZero() {
			select {
			case <-sendDone:
				deadline = time.Now().Add(timeout)
			default:
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			return fmt.Errorf("%w: set read deadline: %v", ErrProbeFailure, err)
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("%w: read: %v", ErrProbeFailure, err)
		}
		now := time.Now()
		idx, ok := parseEchoReply(ep, buf[:n], tracker)
		if !ok {
			continue
		}
		col.markReply(idx, now)
	}
	return nil
}
