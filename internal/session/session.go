// Package session runs the external throughput generator (netperf) and
// parses the single rate it prints on exit.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/NodePath81/betterspeedtest/internal/config"
	"github.com/NodePath81/betterspeedtest/internal/util"
)

// ErrSessionFailure is wrapped by every generator failure: launch errors,
// non-zero exits, watchdog expiry, and unparseable output.
var ErrSessionFailure = errors.New("session failure")

// waitDelay bounds how long Wait keeps reading stdout after a kill.
const waitDelay = time.Second

const (
	testStream = "TCP_STREAM"
	testMaerts = "TCP_MAERTS"
)

// Request describes one generator run.
type Request struct {
	Proto     int
	Host      string
	Direction config.Direction
	Length    time.Duration
}

// Args returns the netperf command line for r: address family, target,
// stream direction, whole-second run length, terse output and no
// confirmation banner.
func (r Request) Args() []string {
	test := testStream
	if r.Direction == config.DirectionDown {
		test = testMaerts
	}
	secs := int(math.Ceil(r.Length.Seconds()))
	return []string{
		"-" + strconv.Itoa(r.Proto),
		"-H", r.Host,
		"-t", test,
		"-l", strconv.Itoa(secs),
		"-v", "0",
		"-P", "0",
	}
}

// Session is a running generator process.
type Session interface {
	ID() int
	// Wait blocks until the process exits and returns its rate in Mbps.
	Wait() (float64, error)
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Generator launches netperf processes.
type Generator struct {
	path    string
	grace   time.Duration
	logger  util.Logger
	command commandFunc
}

// NewGenerator returns a Generator running the binary at path. When grace is
// positive every process is killed once it outlives its requested length by
// more than grace.
func NewGenerator(path string, grace time.Duration, logger util.Logger) *Generator {
	return &Generator{
		path:    path,
		grace:   grace,
		logger:  logger,
		command: exec.CommandContext,
	}
}

type handle struct {
	id      int
	cmd     *exec.Cmd
	stdout  bytes.Buffer
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	limit   time.Duration
	logger  util.Logger
}

// Start launches one generator and returns without waiting for it. The
// process is killed if ctx is canceled.
func (g *Generator) Start(ctx context.Context, id int, req Request) (Session, error) {
	args := req.Args()
	h := &handle{id: id, logger: g.logger}
	if g.grace > 0 {
		h.limit = req.Length + g.grace
		h.ctx, h.cancel = context.WithTimeout(ctx, h.limit)
	} else {
		h.ctx, h.cancel = context.WithCancel(ctx)
	}

	cmd := g.command(h.ctx, g.path, args...)
	cmd.Stdout = &h.stdout
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)
	h.cmd = cmd

	g.logger.Debug().Int("session", id).Msgf("%s %s", g.path, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		h.cancel()
		return nil, fmt.Errorf("%w: session %d: start %s: %v", ErrSessionFailure, id, g.path, err)
	}
	h.started = time.Now()
	return h, nil
}

func (h *handle) ID() int {
	return h.id
}

func (h *handle) Wait() (float64, error) {
	defer h.cancel()
	err := h.cmd.Wait()
	elapsed := time.Since(h.started)
	if err != nil {
		if errors.Is(h.ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: session %d killed after %v watchdog", ErrSessionFailure, h.id, h.limit)
		}
		if h.ctx.Err() != nil {
			return 0, fmt.Errorf("%w: session %d: %v", ErrSessionFailure, h.id, h.ctx.Err())
		}
		return 0, fmt.Errorf("%w: session %d: %v", ErrSessionFailure, h.id, err)
	}
	rate, err := ParseResult(h.stdout.Bytes())
	if err != nil {
		return 0, fmt.Errorf("%w: session %d: %v", ErrSessionFailure, h.id, err)
	}
	h.logger.Debug().
		Int("session", h.id).
		Str("rate", util.FormatMbps(rate)).
		Dur("elapsed", elapsed).
		Msg("session finished")
	return rate, nil
}

// ParseResult parses the whole of a generator's stdout as a single
// non-negative rate.
func ParseResult(out []byte) (float64, error) {
	text := strings.TrimSpace(string(out))
	if text == "" {
		return 0, errors.New("empty generator output")
	}
	rate, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric generator output %q", text)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0, fmt.Errorf("invalid generator rate %q", text)
	}
	return rate, nil
}
