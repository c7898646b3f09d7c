// Package measure coordinates one bufferbloat measurement: parallel
// throughput sessions, a warmup, and a latency probe over the same window.
package measure

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NodePath81/betterspeedtest/internal/config"
	"github.com/NodePath81/betterspeedtest/internal/probe"
	"github.com/NodePath81/betterspeedtest/internal/session"
	"github.com/NodePath81/betterspeedtest/internal/stats"
	"github.com/NodePath81/betterspeedtest/internal/util"
)

// SessionStarter launches throughput sessions without waiting for them.
type SessionStarter interface {
	Start(ctx context.Context, id int, req session.Request) (session.Session, error)
}

// Prober runs a blocking latency probe.
type Prober interface {
	Probe(ctx context.Context, req probe.Request) (probe.Result, error)
}

// Outcome is the report of a run plus the figures behind it.
type Outcome struct {
	Report stats.Report
	Timing config.Timing
	// SessionRates holds each session's rate in Mbps, indexed by session ID-1.
	// Empty for idle runs.
	SessionRates []float64
	ProbeAddr    net.IP
}

type Runner struct {
	sessions SessionStarter
	prober   Prober
	logger   util.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRunner(sessions SessionStarter, prober Prober, logger util.Logger) *Runner {
	return &Runner{
		sessions: sessions,
		prober:   prober,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Run validates params and performs one measurement. Any session or probe
// failure aborts the whole run; no partial report is returned.
func (r *Runner) Run(ctx context.Context, params config.Params) (Outcome, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return Outcome{}, err
	}
	timing := params.Timing()
	probeReq := probe.Request{
		Target:   params.Ping,
		Count:    timing.SampleCount,
		Interval: params.Interval.Duration(),
		Timeout:  params.ProbeTimeout.Duration(),
	}
	if params.Idle {
		return r.runIdle(ctx, params, timing, probeReq)
	}
	return r.runLoad(ctx, params, timing, probeReq)
}

func (r *Runner) runIdle(ctx context.Context, params config.Params, timing config.Timing, probeReq probe.Request) (Outcome, error) {
	r.logger.Info().
		Str("ping", params.Ping).
		Int("count", timing.SampleCount).
		Dur("interval", probeReq.Interval).
		Dur("window", timing.Congruent).
		Msgf("pinging %s for %d * %vs = %vs", params.Ping, timing.SampleCount, probeReq.Interval.Seconds(), timing.Congruent.Seconds())

	res, err := r.prober.Probe(ctx, probeReq)
	if err != nil {
		return Outcome{}, err
	}
	report, err := stats.Summarize(params.Direction.Label(), res.Samples, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Report: report, Timing: timing, ProbeAddr: res.Addr}, nil
}

func (r *Runner) runLoad(ctx context.Context, params config.Params, timing config.Timing, probeReq probe.Request) (Outcome, error) {
	warmup := params.Warmup.Duration()
	req := session.Request{
		Proto:     params.Proto,
		Host:      params.Host,
		Direction: params.Direction,
		Length:    timing.SessionLength(warmup),
	}
	r.logger.Info().
		Int("sessions", params.Num).
		Str("host", params.Host).
		Str("ping", params.Ping).
		Dur("window", timing.Congruent).
		Dur("session_length", req.Length).
		Msgf("%d %s %s netperfs to %s while pinging %s with %.1f pings/s for %vs",
			params.Num, params.ProtoName(), params.Direction, params.Host, params.Ping,
			1/probeReq.Interval.Seconds(), timing.Congruent.Seconds())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	rates := make([]float64, params.Num)
	for i := 0; i < params.Num; i++ {
		s, err := r.sessions.Start(gctx, i+1, req)
		if err != nil {
			cancel()
			_ = g.Wait()
			return Outcome{}, err
		}
		i := i
		g.Go(func() error {
			rate, err := s.Wait()
			if err != nil {
				return err
			}
			rates[i] = rate
			return nil
		})
	}

	if warmup > 0 {
		r.logger.Info().Dur("warmup", warmup).Msgf("Warming up for %vs...", warmup.Seconds())
		if err := r.sleep(gctx, warmup); err != nil {
			cancel()
			if gerr := g.Wait(); gerr != nil {
				return Outcome{}, gerr
			}
			return Outcome{}, err
		}
	}

	r.logger.Info().Msg("Running test...")
	var probeRes probe.Result
	g.Go(func() error {
		res, err := r.prober.Probe(gctx, probeReq)
		if err != nil {
			return err
		}
		probeRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	total := stats.Sum(rates)
	r.logger.Debug().
		Floats64("rates_mbps", rates).
		Str("total", util.FormatMbps(total)).
		Msg("sessions finished")
	report, err := stats.Summarize(params.Direction.Label(), probeRes.Samples, &total)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Report:       report,
		Timing:       timing,
		SessionRates: rates,
		ProbeAddr:    probeRes.Addr,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
