// Package report renders a finished measurement on stdout, either in the
// fixed text layout or as a single JSON document.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/NodePath81/betterspeedtest/internal/config"
	"github.com/NodePath81/betterspeedtest/internal/geoip"
	"github.com/NodePath81/betterspeedtest/internal/measure"
	"github.com/NodePath81/betterspeedtest/internal/pathinfo"
	"github.com/NodePath81/betterspeedtest/internal/stats"
)

const (
	ModeLoad = "load"
	ModeIdle = "idle"
)

var newRunID = uuid.NewString

// WriteText prints r in the classic betterspeedtest layout: an optional
// throughput line, the latency header, then one line per statistic.
func WriteText(w io.Writer, r stats.Report) error {
	ew := &errWriter{w: w}
	if r.ThroughputMbps != nil {
		ew.printf("%9s %.2f Mbps\n", r.Direction, *r.ThroughputMbps)
	}
	l := r.Latency
	ew.printf("%9s (in msec, %d pings, %.2f%% packet loss)\n", "Latency:", l.PacketsSent, l.Loss*100)
	for _, line := range []struct {
		label string
		value float64
	}{
		{"Min:", l.Min},
		{"10pct:", l.P10},
		{"Median:", l.Median},
		{"Avg:", l.Avg},
		{"90pct:", l.P90},
		{"Max:", l.Max},
		{"Jitter:", l.Jitter},
	} {
		ew.printf("%9s %.3f\n", line.label, line.value)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// Document is the machine-readable form of one run.
type Document struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Mode      string    `json:"mode"`
	Test      TestInfo  `json:"test"`

	stats.Report
	SessionRatesMbps []float64 `json:"session_rates_mbps,omitempty"`

	Path  *pathinfo.Info     `json:"path,omitempty"`
	GeoIP []geoip.Annotation `json:"geoip,omitempty"`
}

// TestInfo records the parameters that shaped the run.
type TestInfo struct {
	Proto         int     `json:"proto"`
	Host          string  `json:"host,omitempty"`
	Ping          string  `json:"ping"`
	ProbeAddr     string  `json:"probe_addr,omitempty"`
	Sessions      int     `json:"sessions,omitempty"`
	IntervalSec   float64 `json:"interval_s"`
	WindowSec     float64 `json:"window_s"`
	WarmupSec     float64 `json:"warmup_s,omitempty"`
	SampleCount   int     `json:"sample_count"`
	SessionLenSec float64 `json:"session_length_s,omitempty"`
}

// NewDocument assembles the document for a finished run. Host, session and
// warmup fields are left empty for idle runs.
func NewDocument(params config.Params, out measure.Outcome, startedAt time.Time) Document {
	doc := Document{
		RunID:     newRunID(),
		StartedAt: startedAt.UTC(),
		Mode:      ModeLoad,
		Test: TestInfo{
			Proto:       params.Proto,
			Ping:        params.Ping,
			IntervalSec: params.Interval.Duration().Seconds(),
			WindowSec:   out.Timing.Congruent.Seconds(),
			SampleCount: out.Timing.SampleCount,
		},
		Report:           out.Report,
		SessionRatesMbps: out.SessionRates,
	}
	if out.ProbeAddr != nil {
		doc.Test.ProbeAddr = out.ProbeAddr.String()
	}
	if params.Idle {
		doc.Mode = ModeIdle
		return doc
	}
	warmup := params.Warmup.Duration()
	doc.Test.Host = params.Host
	doc.Test.Sessions = params.Num
	doc.Test.WarmupSec = warmup.Seconds()
	doc.Test.SessionLenSec = out.Timing.SessionLength(warmup).Seconds()
	return doc
}

func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Write renders doc in the requested output format.
func Write(w io.Writer, format string, doc Document) error {
	switch format {
	case config.OutputJSON:
		return WriteJSON(w, doc)
	case config.OutputText, "":
		return WriteText(w, doc.Report)
	default:
		return fmt.Errorf("%w: unknown output format %q", config.ErrInvalidConfig, format)
	}
}
