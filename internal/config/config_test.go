package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		ok     bool
	}{
		{"zero interval", func(p *Params) { p.Interval = 0 }, false},
		{"negative interval", func(p *Params) { p.Interval = Duration(-time.Second) }, false},
		{"zero length", func(p *Params) { p.Length = 0 }, false},
		{"zero sessions", func(p *Params) { p.Num = 0 }, false},
		{"zero sessions idle", func(p *Params) { p.Num = 0; p.Idle = true }, true},
		{"bad proto", func(p *Params) { p.Proto = 5 }, false},
		{"ipv6", func(p *Params) { p.Proto = 6 }, true},
		{"bad direction", func(p *Params) { p.Direction = "sideways" }, false},
		{"mixed case direction", func(p *Params) { p.Direction = " Down " }, true},
		{"empty ping", func(p *Params) { p.Ping = "" }, false},
		{"empty host", func(p *Params) { p.Host = "" }, false},
		{"empty host idle", func(p *Params) { p.Host = ""; p.Idle = true }, true},
		{"negative warmup", func(p *Params) { p.Warmup = Duration(-time.Second) }, false},
		{"zero warmup", func(p *Params) { p.Warmup = 0 }, true},
		{"bad output", func(p *Params) { p.Output = "xml" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bst.yaml")
	raw := []byte("host: netperf.example.net\ninterval: 0.25\nwarmup: 0\nlength: 1m\ndirection: down\nsession_grace: 5s\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := Default()
	want.Host = "netperf.example.net"
	want.Interval = Duration(250 * time.Millisecond)
	want.Warmup = 0
	want.Length = Duration(time.Minute)
	want.Direction = DirectionDown
	want.SessionGrace = Duration(5 * time.Second)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsNonScalarDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bst.yaml")
	if err := os.WriteFile(path, []byte("interval: [1, 2]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() error = nil, want duration error")
	}
}

func TestDirectionLabel(t *testing.T) {
	if got := DirectionUp.Label(); got != "Upload" {
		t.Fatalf("DirectionUp.Label() = %q, want Upload", got)
	}
	if got := DirectionDown.Label(); got != "Download" {
		t.Fatalf("DirectionDown.Label() = %q, want Download", got)
	}
}
