// Package stats turns the round-trip times collected by a latency probe into
// the distribution figures printed in the final report.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientData is returned when there is no RTT sample to summarize.
var ErrInsufficientData = errors.New("insufficient data")

// Samples is the frozen output of one probe run. RTTs are in milliseconds,
// in the order the replies were matched.
type Samples struct {
	RTTs        []float64
	PacketsSent int
	// Loss is the lost fraction of PacketsSent, in [0,1].
	Loss   float64
	MinRTT float64
	AvgRTT float64
	MaxRTT float64
	Jitter float64
}

// Latency holds the latency figures of a Report, all in milliseconds except
// Loss.
type Latency struct {
	PacketsSent int     `json:"packets_sent"`
	Loss        float64 `json:"loss"`
	Min         float64 `json:"min_ms"`
	P10         float64 `json:"p10_ms"`
	Median      float64 `json:"median_ms"`
	Avg         float64 `json:"avg_ms"`
	P90         float64 `json:"p90_ms"`
	Max         float64 `json:"max_ms"`
	Jitter      float64 `json:"jitter_ms"`
}

// Report is the result of one measurement run.
type Report struct {
	Direction string `json:"direction"`
	// ThroughputMbps is nil for idle runs.
	ThroughputMbps *float64 `json:"throughput_mbps,omitempty"`
	Latency        Latency  `json:"latency"`
}

// HasThroughput reports whether the run generated load.
func (r Report) HasThroughput() bool {
	return r.ThroughputMbps != nil
}

// Summarize builds a Report from s. throughput is nil for idle runs. s is not
// modified.
func Summarize(direction string, s Samples, throughput *float64) (Report, error) {
	if len(s.RTTs) == 0 {
		return Report{}, fmt.Errorf("%w: no rtt samples (%d sent, %.2f%% lost)", ErrInsufficientData, s.PacketsSent, s.Loss*100)
	}
	sorted := make([]float64, len(s.RTTs))
	copy(sorted, s.RTTs)
	sort.Float64s(sorted)

	report := Report{
		Direction: direction,
		Latency: Latency{
			PacketsSent: s.PacketsSent,
			Loss:        s.Loss,
			Min:         s.MinRTT,
			P10:         Percentile(sorted, 10),
			Median:      Percentile(sorted, 50),
			Avg:         s.AvgRTT,
			P90:         Percentile(sorted, 90),
			Max:         s.MaxRTT,
			Jitter:      s.Jitter,
		},
	}
	if throughput != nil {
		v := *throughput
		report.ThroughputMbps = &v
	}
	return report, nil
}

// FromRTTs fills the probe-side summary (min, avg, max, jitter, loss) for a
// set of RTTs collected out of sent attempts.
func FromRTTs(rtts []float64, sent int) Samples {
	s := Samples{
		RTTs:        rtts,
		PacketsSent: sent,
	}
	if sent > 0 {
		s.Loss = clampFloat(float64(sent-len(rtts))/float64(sent), 0, 1)
	}
	if len(rtts) == 0 {
		return s
	}
	s.MinRTT, s.MaxRTT = rtts[0], rtts[0]
	for _, v := range rtts[1:] {
		s.MinRTT = math.Min(s.MinRTT, v)
		s.MaxRTT = math.Max(s.MaxRTT, v)
	}
	s.AvgRTT = Mean(rtts)
	s.Jitter = Jitter(rtts)
	return s
}

// Percentile returns the p-th percentile (0..100) of sorted using linear
// interpolation between closest ranks: rank = p/100 * (n-1).
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// Jitter is the mean absolute difference between consecutive samples. It is
// zero for fewer than two samples.
func Jitter(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		sum += math.Abs(samples[i] - samples[i-1])
	}
	return sum / float64(len(samples)-1)
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Sum adds values in index order.
func Sum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}

func clampFloat(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
