package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NodePath81/betterspeedtest/internal/util"
)

const (
	defaultProto        = 4
	defaultHost         = "netperf-west.bufferbloat.net"
	defaultPing         = "1.1.1.1"
	defaultLength       = 30 * time.Second
	defaultInterval     = 100 * time.Millisecond
	defaultWarmup       = 10 * time.Second
	defaultNum          = 5
	defaultGenerator    = "netperf"
	defaultProbeTimeout = 2 * time.Second
	defaultSessionGrace = 30 * time.Second
	defaultLogLevel     = "info"

	OutputText = "text"
	OutputJSON = "json"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Direction is the traffic direction relative to this host.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Label is the report label for the direction.
func (d Direction) Label() string {
	if d == DirectionDown {
		return "Download"
	}
	return "Upload"
}

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(util.DurationFromSeconds(secs))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Params holds everything a single measurement run needs. It is built once
// at startup and treated as read-only afterwards.
type Params struct {
	Proto     int       `yaml:"proto"`
	Host      string    `yaml:"host"`
	Ping      string    `yaml:"ping"`
	Direction Direction `yaml:"direction"`
	Length    Duration  `yaml:"length"`
	Interval  Duration  `yaml:"interval"`
	Warmup    Duration  `yaml:"warmup"`
	Num       int       `yaml:"num"`
	Idle      bool      `yaml:"idle"`

	Generator    string   `yaml:"generator"`
	ProbeTimeout Duration `yaml:"probe_timeout"`
	SessionGrace Duration `yaml:"session_grace"`
	LogLevel     string   `yaml:"log_level"`
	Output       string   `yaml:"output"`
	GeoIPDB      string   `yaml:"geoip_db"`
}

// Default returns the parameters used when neither a config file nor a flag
// says otherwise.
func Default() Params {
	return Params{
		Proto:        defaultProto,
		Host:         defaultHost,
		Ping:         defaultPing,
		Direction:    DirectionUp,
		Length:       Duration(defaultLength),
		Interval:     Duration(defaultInterval),
		Warmup:       Duration(defaultWarmup),
		Num:          defaultNum,
		Generator:    defaultGenerator,
		ProbeTimeout: Duration(defaultProbeTimeout),
		SessionGrace: Duration(defaultSessionGrace),
		LogLevel:     defaultLogLevel,
		Output:       OutputText,
	}
}

// Load overlays the YAML file at path on top of Default. Keys missing from
// the file keep their default value.
func Load(path string) (Params, error) {
	p := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Params{}, fmt.Errorf("parse %s: %w", path, err)
	}
	p.Normalize()
	return p, nil
}

// Normalize trims host names and lower-cases enumerated fields.
func (p *Params) Normalize() {
	p.Host = strings.TrimSpace(p.Host)
	p.Ping = strings.TrimSpace(p.Ping)
	p.Direction = Direction(strings.ToLower(strings.TrimSpace(string(p.Direction))))
	p.Output = strings.ToLower(strings.TrimSpace(p.Output))
	if p.Output == "" {
		p.Output = OutputText
	}
	if p.Generator == "" {
		p.Generator = defaultGenerator
	}
}

// Validate reports the first invalid field. All errors wrap ErrInvalidConfig.
func (p Params) Validate() error {
	p.Normalize()
	if p.Interval.Duration() <= 0 {
		return fmt.Errorf("%w: interval must be > 0", ErrInvalidConfig)
	}
	if p.Length.Duration() <= 0 {
		return fmt.Errorf("%w: length must be > 0", ErrInvalidConfig)
	}
	if p.Ping == "" {
		return fmt.Errorf("%w: ping host must not be empty", ErrInvalidConfig)
	}
	if p.ProbeTimeout.Duration() < 0 {
		return fmt.Errorf("%w: probe timeout must be >= 0", ErrInvalidConfig)
	}
	if p.Output != OutputText && p.Output != OutputJSON {
		return fmt.Errorf("%w: output must be %s or %s", ErrInvalidConfig, OutputText, OutputJSON)
	}
	if p.Proto != 4 && p.Proto != 6 {
		return fmt.Errorf("%w: proto must be 4 or 6, got %d", ErrInvalidConfig, p.Proto)
	}
	if p.Idle {
		return nil
	}
	if p.Num < 1 {
		return fmt.Errorf("%w: num must be >= 1, got %d", ErrInvalidConfig, p.Num)
	}
	if p.Warmup.Duration() < 0 {
		return fmt.Errorf("%w: warmup must be >= 0", ErrInvalidConfig)
	}
	if p.SessionGrace.Duration() < 0 {
		return fmt.Errorf("%w: session grace must be >= 0", ErrInvalidConfig)
	}
	if p.Direction != DirectionUp && p.Direction != DirectionDown {
		return fmt.Errorf("%w: direction must be up or down, got %q", ErrInvalidConfig, p.Direction)
	}
	if p.Host == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidConfig)
	}
	return nil
}

// ProtoName is the address family label used in log output.
func (p Params) ProtoName() string {
	if p.Proto == 6 {
		return "ipv6"
	}
	return "ipv4"
}
