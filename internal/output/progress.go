package output

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

// Snapshotter is the read side of the aggregator.
type Snapshotter interface {
	Snapshot() metrics.AggregateSnapshot
}

// BudgetSource exposes the work budget of a running test.
type BudgetSource interface {
	Budget() runner.WorkBudget
}

// DataPoint is one sample of the progress history.
type DataPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalRequests uint64    `json:"total_requests"`
	Failures      uint64    `json:"failures"`
	CurrentRPS    float64   `json:"current_rps"`
	P50LatencyMs  float64   `json:"p50_latency_ms"`
	P90LatencyMs  float64   `json:"p90_latency_ms"`
	P99LatencyMs  float64   `json:"p99_latency_ms"`
}

// ProgressReporter displays real-time progress updates and keeps a history
// of samples for the HTML report.
type ProgressReporter struct {
	source   Snapshotter
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	budget   BudgetSource

	mu       sync.Mutex
	history  []DataPoint
	lastAt   time.Time
	lastSeen uint64
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source Snapshotter, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Track appends the remaining calls or time left of src's budget to each
// status line. Call it before Start.
func (p *ProgressReporter) Track(src BudgetSource) {
	p.budget = src
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the status line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

// History returns a copy of the samples taken so far.
func (p *ProgressReporter) History() []DataPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]DataPoint, len(p.history))
	copy(out, p.history)
	return out
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, p.Sample())
		case <-p.done:
			return
		}
	}
}

// Sample takes one snapshot, appends it to the history and returns the
// status line.
func (p *ProgressReporter) Sample() string {
	snap := p.source.Snapshot()
	rr := metrics.BuildRunReport("", "", snap)
	c := rr.Combined

	p.mu.Lock()
	current := c.RequestsPerSecond
	if !p.lastAt.IsZero() {
		if dt := snap.Taken.Sub(p.lastAt).Seconds(); dt > 0 && c.TotalRequests >= p.lastSeen {
			current = float64(c.TotalRequests-p.lastSeen) / dt
		}
	}
	p.lastAt, p.lastSeen = snap.Taken, c.TotalRequests

	p50, _ := c.Latency(metrics.StatP50)
	p90, _ := c.Latency(metrics.StatP90)
	p99, _ := c.Latency(metrics.StatP99)
	p.history = append(p.history, DataPoint{
		Timestamp:     snap.Taken,
		TotalRequests: c.TotalRequests,
		Failures:      c.FailedRequests(),
		CurrentRPS:    current,
		P50LatencyMs:  float64(p50) / 1000,
		P90LatencyMs:  float64(p90) / 1000,
		P99LatencyMs:  float64(p99) / 1000,
	})
	p.mu.Unlock()

	line := fmt.Sprintf("\rRequests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		c.TotalRequests, c.SuccessfulRequests, c.FailedRequests(), current)
	if name, op, ok := topOperation(rr); ok && c.TotalRequests > 0 {
		share := (float64(op.TotalRequests) / float64(c.TotalRequests)) * 100
		opP99, _ := op.Latency(metrics.StatP99)
		line += fmt.Sprintf(" | Top Operation: %s (%.0f%%, P99 %.1fms)", name, share, float64(opP99)/1000)
	}
	return line + p.budgetSegment(snap.Taken)
}

func (p *ProgressReporter) budgetSegment(now time.Time) string {
	if p.budget == nil {
		return ""
	}
	switch b := p.budget.Budget().(type) {
	case *runner.CountBudget:
		return fmt.Sprintf(" | Remaining: %d/%d", b.Remaining(), b.Limit())
	case *runner.DeadlineBudget:
		left := b.Deadline().Sub(now)
		if left < 0 {
			left = 0
		}
		return fmt.Sprintf(" | Time left: %s", left.Round(time.Second))
	}
	return ""
}

func topOperation(rr metrics.RunReport) (string, metrics.Report, bool) {
	if len(rr.ByOperation) == 0 {
		return "", metrics.Report{}, false
	}
	names := rr.Operations()
	sort.SliceStable(names, func(i, j int) bool {
		return rr.ByOperation[names[i]].TotalRequests > rr.ByOperation[names[j]].TotalRequests
	})
	name := names[0]
	return name, rr.ByOperation[name], true
}
