package util

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"critical", zerolog.FatalLevel},
	}
	for _, tt := range tests {
		logger, err := NewLogger(&bytes.Buffer{}, tt.level)
		if err != nil {
			t.Fatalf("NewLogger(%q) error: %v", tt.level, err)
		}
		if got := logger.GetLevel(); got != tt.want {
			t.Fatalf("NewLogger(%q).GetLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
	if _, err := NewLogger(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("NewLogger(loud) error = nil, want error")
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestFormatMbps(t *testing.T) {
	tests := []struct {
		mbps float64
		want string
	}{
		{32.3, "32.3 Mbps"},
		{940, "940 Mbps"},
		{1500, "1.50 Gbps"},
		{0.5, "500 Kbps"},
	}
	for _, tt := range tests {
		if got := FormatMbps(tt.mbps); got != tt.want {
			t.Fatalf("FormatMbps(%v) = %q, want %q", tt.mbps, got, tt.want)
		}
	}
}

func TestDurationFromSeconds(t *testing.T) {
	if got := DurationFromSeconds(0.1); got != 100*time.Millisecond {
		t.Fatalf("DurationFromSeconds(0.1) = %v, want 100ms", got)
	}
	if got := DurationFromSeconds(2.3); got != 2300*time.Millisecond {
		t.Fatalf("DurationFromSeconds(2.3) = %v, want 2.3s", got)
	}
	if got := DurationFromSeconds(-1); got != -time.Second {
		t.Fatalf("DurationFromSeconds(-1) = %v, want -1s", got)
	}
}
