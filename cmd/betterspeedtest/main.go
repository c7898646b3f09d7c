package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/NodePath81/betterspeedtest/internal/config"
	"github.com/NodePath81/betterspeedtest/internal/geoip"
	"github.com/NodePath81/betterspeedtest/internal/measure"
	"github.com/NodePath81/betterspeedtest/internal/pathinfo"
	"github.com/NodePath81/betterspeedtest/internal/probe"
	"github.com/NodePath81/betterspeedtest/internal/report"
	"github.com/NodePath81/betterspeedtest/internal/session"
	"github.com/NodePath81/betterspeedtest/internal/util"
)

var version = "dev"

func main() {
	app := newApp(os.Stdout, os.Stderr, run)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type runFunc func(ctx context.Context, params config.Params, stdout, stderr io.Writer) error

func newApp(stdout, stderr io.Writer, action runFunc) *cli.App {
	defaults := config.Default()
	return &cli.App{
		Name:            "betterspeedtest",
		Usage:           "measure throughput and latency under load",
		Version:         version,
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML file with parameters; flags override it",
			},
			&cli.IntFlag{
				Name:  "proto",
				Value: defaults.Proto,
				Usage: "IP version for generator traffic (4 or 6)",
			},
			&cli.StringFlag{
				Name:  "host",
				Value: defaults.Host,
				Usage: "netperf server",
			},
			&cli.StringFlag{
				Name:  "ping",
				Value: defaults.Ping,
				Usage: "latency probe target",
			},
			&cli.StringFlag{
				Name:  "direction",
				Value: string(defaults.Direction),
				Usage: "up or down",
			},
			&cli.Float64Flag{
				Name:  "length",
				Value: defaults.Length.Duration().Seconds(),
				Usage: "test length in seconds",
			},
			&cli.Float64Flag{
				Name:  "interval",
				Value: defaults.Interval.Duration().Seconds(),
				Usage: "seconds between pings",
			},
			&cli.Float64Flag{
				Name:  "warmup",
				Value: defaults.Warmup.Duration().Seconds(),
				Usage: "seconds of load before pinging starts",
			},
			&cli.IntFlag{
				Name:  "num",
				Value: defaults.Num,
				Usage: "number of concurrent netperf sessions",
			},
			&cli.BoolFlag{
				Name:  "idle",
				Usage: "ping only, generate no load",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: defaults.LogLevel,
				Usage: "debug, info, warning or error",
			},
			&cli.StringFlag{
				Name:  "generator",
				Value: defaults.Generator,
				Usage: "path to the netperf binary",
			},
			&cli.Float64Flag{
				Name:  "probe-timeout",
				Value: defaults.ProbeTimeout.Duration().Seconds(),
				Usage: "seconds before an unanswered ping counts as lost",
			},
			&cli.Float64Flag{
				Name:  "session-grace",
				Value: defaults.SessionGrace.Duration().Seconds(),
				Usage: "seconds a netperf may overrun before it is killed (0 disables)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   defaults.Output,
				Usage:   "report format: text or json",
			},
			&cli.StringFlag{
				Name:  "geoip-db",
				Usage: "MaxMind DB used to annotate target addresses",
			},
		},
		Action: func(c *cli.Context) error {
			params, err := paramsFromFlags(c)
			if err != nil {
				return err
			}
			return action(c.Context, params, stdout, stderr)
		},
	}
}

// paramsFromFlags starts from defaults or the --config file and applies every
// flag given explicitly on the command line.
func paramsFromFlags(c *cli.Context) (config.Params, error) {
	params := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Params{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		params = loaded
	}
	if c.IsSet("proto") {
		params.Proto = c.Int("proto")
	}
	if c.IsSet("host") {
		params.Host = c.String("host")
	}
	if c.IsSet("ping") {
		params.Ping = c.String("ping")
	}
	if c.IsSet("direction") {
		params.Direction = config.Direction(c.String("direction"))
	}
	if c.IsSet("length") {
		params.Length = seconds(c, "length")
	}
	if c.IsSet("interval") {
		params.Interval = seconds(c, "interval")
	}
	if c.IsSet("warmup") {
		params.Warmup = seconds(c, "warmup")
	}
	if c.IsSet("num") {
		params.Num = c.Int("num")
	}
	if c.IsSet("idle") {
		params.Idle = c.Bool("idle")
	}
	if c.IsSet("log-level") {
		params.LogLevel = c.String("log-level")
	}
	if c.IsSet("generator") {
		params.Generator = c.String("generator")
	}
	if c.IsSet("probe-timeout") {
		params.ProbeTimeout = seconds(c, "probe-timeout")
	}
	if c.IsSet("session-grace") {
		params.SessionGrace = seconds(c, "session-grace")
	}
	if c.IsSet("output") {
		params.Output = c.String("output")
	}
	if c.IsSet("geoip-db") {
		params.GeoIPDB = c.String("geoip-db")
	}
	params.Normalize()
	return params, nil
}

func seconds(c *cli.Context, name string) config.Duration {
	return config.Duration(util.DurationFromSeconds(c.Float64(name)))
}

func run(ctx context.Context, params config.Params, stdout, stderr io.Writer) error {
	logger, err := util.NewLogger(stderr, params.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if err := params.Validate(); err != nil {
		return err
	}

	var geo *geoip.DB
	if params.GeoIPDB != "" {
		geo, err = geoip.Open(params.GeoIPDB)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		defer geo.Close()
		logger.Debug().Str("path", params.GeoIPDB).Str("type", geo.Type()).Msg("geoip database loaded")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := inspectPath(ctx, logger, params)

	runner := measure.NewRunner(
		session.NewGenerator(params.Generator, params.SessionGrace.Duration(), logger),
		probe.NewICMPProber(logger),
		logger,
	)
	started := time.Now()
	out, err := runner.Run(ctx, params)
	if err != nil {
		return err
	}

	doc := report.NewDocument(params, out, started)
	doc.Path = path
	if geo != nil {
		addrs := []net.IP{out.ProbeAddr}
		if path != nil {
			addrs = append(addrs, path.Dst)
		}
		doc.GeoIP = annotate(logger, geo, addrs)
	}
	return report.Write(stdout, params.Output, doc)
}

// inspectPath logs the egress interface and qdisc towards the host carrying
// the load (the ping target for idle runs). Failures are not fatal.
func inspectPath(ctx context.Context, logger util.Logger, params config.Params) *pathinfo.Info {
	target := params.Host
	if params.Idle {
		target = params.Ping
	}
	info, err := pathinfo.Lookup(ctx, target)
	if err != nil {
		logger.Debug().Err(err).Str("target", target).Msg("path inspection skipped")
		return nil
	}
	logger.Info().
		Str("target", target).
		Str("interface", info.Interface).
		Str("qdisc", info.Qdisc).
		Int("mtu", info.MTU).
		Msg("egress path")
	return &info
}

func annotate(logger util.Logger, db *geoip.DB, addrs []net.IP) []geoip.Annotation {
	var out []geoip.Annotation
	seen := make(map[string]bool)
	for _, ip := range addrs {
		if ip == nil || seen[ip.String()] {
			continue
		}
		seen[ip.String()] = true
		ann, ok, err := db.Lookup(ip)
		if err != nil {
			logger.Debug().Err(err).Msg("geoip lookup failed")
			continue
		}
		if !ok {
			continue
		}
		logger.Info().
			Str("ip", ip.String()).
			Str("country", ann.Country).
			Uint("asn", ann.ASN).
			Str("as_org", ann.Org).
			Msg("geoip")
		out = append(out, ann)
	}
	return out
}
