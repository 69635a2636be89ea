package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/perfgauge/internal/histogram"
)

// CounterSet accumulates outcomes for one scope (the whole run or a single
// operation). Scalar totals are atomics so progress readers never block
// recorders; the status map and histograms share one mutex.
type CounterSet struct {
	start time.Time

	totalBytes    atomic.Uint64
	totalRequests atomic.Uint64
	successful    atomic.Uint64

	mu             sync.Mutex
	statusCounts   map[string]uint64
	successLatency *histogram.Histogram
	errorLatency   *histogram.Histogram
}

// CounterSnapshot is an immutable copy of a CounterSet.
type CounterSnapshot struct {
	Start              time.Time
	TotalBytes         uint64
	TotalRequests      uint64
	SuccessfulRequests uint64
	StatusCounts       map[string]uint64
	SuccessLatency     *histogram.Histogram
	ErrorLatency       *histogram.Histogram
}

// NewCounterSet returns an empty set whose clock starts at start.
func NewCounterSet(start time.Time) *CounterSet {
	return &CounterSet{
		start:          start,
		statusCounts:   make(map[string]uint64),
		successLatency: histogram.New(),
		errorLatency:   histogram.New(),
	}
}

// Record adds one outcome.
func (c *CounterSet) Record(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Success {
		c.successLatency.IncrementDuration(o.Duration)
		c.successful.Add(1)
	} else {
		c.errorLatency.IncrementDuration(o.Duration)
	}
	c.statusCounts[o.Status]++
	c.totalBytes.Add(o.Bytes)
	c.totalRequests.Add(1)
}

// Totals returns the request and success counts without taking the lock.
// The pair may be momentarily out of step while a Record is in flight.
func (c *CounterSet) Totals() (requests, successes uint64) {
	return c.totalRequests.Load(), c.successful.Load()
}

// Start returns the time the set was created.
func (c *CounterSet) Start() time.Time {
	return c.start
}

// Snapshot copies the current state.
func (c *CounterSet) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := make(map[string]uint64, len(c.statusCounts))
	for k, v := range c.statusCounts {
		status[k] = v
	}
	return CounterSnapshot{
		Start:              c.start,
		TotalBytes:         c.totalBytes.Load(),
		TotalRequests:      c.totalRequests.Load(),
		SuccessfulRequests: c.successful.Load(),
		StatusCounts:       status,
		SuccessLatency:     c.successLatency.Clone(),
		ErrorLatency:       c.errorLatency.Clone(),
	}
}

// FailedRequests is TotalRequests minus SuccessfulRequests.
func (s CounterSnapshot) FailedRequests() uint64 {
	return s.TotalRequests - s.SuccessfulRequests
}

// Latency returns the success and error histograms merged into a new one.
func (s CounterSnapshot) Latency() *histogram.Histogram {
	h := histogram.New()
	h.Merge(s.SuccessLatency)
	h.Merge(s.ErrorLatency)
	return h
}

// MergeSnapshots folds several snapshots into one. The earliest start wins.
func MergeSnapshots(snaps ...CounterSnapshot) CounterSnapshot {
	out := CounterSnapshot{
		StatusCounts:   make(map[string]uint64),
		SuccessLatency: histogram.New(),
		ErrorLatency:   histogram.New(),
	}
	for _, s := range snaps {
		if out.Start.IsZero() || (!s.Start.IsZero() && s.Start.Before(out.Start)) {
			out.Start = s.Start
		}
		out.TotalBytes += s.TotalBytes
		out.TotalRequests += s.TotalRequests
		out.SuccessfulRequests += s.SuccessfulRequests
		for k, v := range s.StatusCounts {
			out.StatusCounts[k] += v
		}
		out.SuccessLatency.Merge(s.SuccessLatency)
		out.ErrorLatency.Merge(s.ErrorLatency)
	}
	return out
}
