package probe

import (
	"sync"
	"time"

	"github.com/NodePath81/betterspeedtest/internal/stats"
)

// collector records send times and matched replies, indexed by sequence.
type collector struct {
	mu      sync.Mutex
	timeout time.Duration
	sentAt  []time.Time
	rtt     []time.Duration
	got     []bool
	sent    int
	recv    int
}

func newCollector(count int, timeout time.Duration) *collector {
	return &collector{
		timeout: timeout,
		sentAt:  make([]time.Time, count),
		rtt:     make([]time.Duration, count),
		got:     make([]bool, count),
	}
}

func (c *collector) markSent(idx int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.sentAt) || !c.sentAt[idx].IsZero() {
		return
	}
	c.sentAt[idx] = at
	c.sent++
}

// markReply records a reply received at at. Unknown, duplicate and late
// replies are ignored and reported as false.
func (c *collector) markReply(idx int, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.sentAt) || c.sentAt[idx].IsZero() || c.got[idx] {
		return false
	}
	rtt := at.Sub(c.sentAt[idx])
	if rtt < 0 || rtt > c.timeout {
		return false
	}
	c.rtt[idx] = rtt
	c.got[idx] = true
	c.recv++
	return true
}

func (c *collector) complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recv == len(c.sentAt)
}

// samples returns the matched RTTs in milliseconds, in sequence order.
func (c *collector) samples() stats.Samples {
	c.mu.Lock()
	defer c.mu.Unlock()
	rtts := make([]float64, 0, c.recv)
	for i, ok := range c.got {
		if ok {
			rtts = append(rtts, float64(c.rtt[i].Microseconds())/1000.0)
		}
	}
	return stats.FromRTTs(rtts, c.sent)
}
