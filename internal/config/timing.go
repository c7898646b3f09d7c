package config

import (
	"math"
	"time"
)

// ceilTolerance absorbs binary floating point error so that 30s at 0.1s
// gives 300 samples over 30s rather than 301 over 31s.
const ceilTolerance = 1e-9

// SessionMargin keeps every generator alive past the end of the probe window.
const SessionMargin = 2 * time.Second

// Timing is derived once from Length and Interval.
type Timing struct {
	// SampleCount is ceil(length / interval).
	SampleCount int
	// Congruent is ceil(SampleCount * interval), in whole seconds.
	Congruent time.Duration
}

// ComputeTiming returns the probe sample count and the congruent duration
// for the requested length. interval must be > 0.
func ComputeTiming(length, interval time.Duration) Timing {
	intervalSec := interval.Seconds()
	count := int(math.Ceil(length.Seconds()/intervalSec - ceilTolerance))
	if count < 1 {
		count = 1
	}
	secs := math.Ceil(float64(count)*intervalSec - ceilTolerance)
	return Timing{
		SampleCount: count,
		Congruent:   time.Duration(secs) * time.Second,
	}
}

// SessionLength is how long each generator must run so that it spans the
// warmup, the whole probe window, and SessionMargin.
func (t Timing) SessionLength(warmup time.Duration) time.Duration {
	return t.Congruent + warmup + SessionMargin
}

// Timing derives the probe schedule from p.
func (p Params) Timing() Timing {
	return ComputeTiming(p.Length.Duration(), p.Interval.Duration())
}
