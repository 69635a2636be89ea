package metrics

import (
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultLabel names a run when the caller supplies none.
const DefaultLabel = "perfgauge"

// Latency summary row names, in report order.
const (
	StatMin    = "Min"
	StatP50    = "p50"
	StatP90    = "p90"
	StatP99    = "p99"
	StatP999   = "p99.9"
	StatP9999  = "p99.99"
	StatMax    = "Max"
	StatMean   = "Mean"
	StatStdDev = "StdDev"
	StatTM95   = "tm95"
	StatTM99   = "tm99"
	StatTM999  = "tm99.9"
)

// LatencyStat is one latency summary row. Values are microseconds.
// Excluded is set for truncated means only.
type LatencyStat struct {
	Name     string `json:"name" yaml:"name"`
	Value    int64  `json:"value_us" yaml:"value_us"`
	Excluded int64  `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

// Report is the user-facing summary of one CounterSnapshot.
type Report struct {
	Label              string        `json:"label" yaml:"label"`
	Elapsed            time.Duration `json:"-" yaml:"-"`
	ElapsedSeconds     float64       `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	TotalBytes         uint64        `json:"total_bytes" yaml:"total_bytes"`
	TotalRequests      uint64        `json:"total_requests" yaml:"total_requests"`
	SuccessfulRequests uint64        `json:"successful_requests" yaml:"successful_requests"`
	// SuccessRate is a percentage; nil when no request was recorded.
	SuccessRate       *float64      `json:"success_rate,omitempty" yaml:"success_rate,omitempty"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	BitsPerSecond     float64       `json:"bits_per_second" yaml:"bits_per_second"`
	StatusSummary     []StatusCount `json:"status_summary" yaml:"status_summary"`
	LatencySummary    []LatencyStat `json:"latency_summary" yaml:"latency_summary"`
}

// RunReport carries the combined report and one report per named operation.
type RunReport struct {
	RunID       string            `json:"run_id" yaml:"run_id"`
	Label       string            `json:"label" yaml:"label"`
	Combined    Report            `json:"combined" yaml:"combined"`
	ByOperation map[string]Report `json:"by_operation,omitempty" yaml:"by_operation,omitempty"`
}

// NewRunID returns a sortable unique run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// BuildReport derives a Report from s as of now. It never mutates s.
func BuildReport(label string, s CounterSnapshot, now time.Time) Report {
	if label == "" {
		label = DefaultLabel
	}
	elapsed := now.Sub(s.Start)
	if elapsed < 0 || s.Start.IsZero() {
		elapsed = 0
	}

	r := Report{
		Label:              label,
		Elapsed:            elapsed,
		ElapsedSeconds:     elapsed.Seconds(),
		TotalBytes:         s.TotalBytes,
		TotalRequests:      s.TotalRequests,
		SuccessfulRequests: s.SuccessfulRequests,
		StatusSummary:      SummarizeStatus(s.StatusCounts),
		LatencySummary:     LatencySummary(s),
	}
	if s.TotalRequests > 0 {
		rate := float64(s.SuccessfulRequests) * 100 / float64(s.TotalRequests)
		r.SuccessRate = &rate
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.RequestsPerSecond = float64(s.TotalRequests) / secs
		r.BitsPerSecond = float64(s.TotalBytes) * 8 / secs
	}
	return r
}

// BuildRunReport derives the combined and per-operation reports of s.
func BuildRunReport(runID, label string, s AggregateSnapshot) RunReport {
	if label == "" {
		label = DefaultLabel
	}
	rr := RunReport{
		RunID:    runID,
		Label:    label,
		Combined: BuildReport(label, s.Combined, s.Taken),
	}
	if len(s.ByOperation) > 0 {
		rr.ByOperation = make(map[string]Report, len(s.ByOperation))
		for name, snap := range s.ByOperation {
			rr.ByOperation[name] = BuildReport(name, snap, s.Taken)
		}
	}
	return rr
}

// LatencySummary computes the latency rows over the success and error
// histograms merged together.
func LatencySummary(s CounterSnapshot) []LatencyStat {
	h := s.Latency()
	tm95 := h.TruncatedMean(5)
	tm99 := h.TruncatedMean(1)
	tm999 := h.TruncatedMean(0.1)

	return []LatencyStat{
		{Name: StatMin, Value: h.Min()},
		{Name: StatP50, Value: h.Percentile(50)},
		{Name: StatP90, Value: h.Percentile(90)},
		{Name: StatP99, Value: h.Percentile(99)},
		{Name: StatP999, Value: h.Percentile(99.9)},
		{Name: StatP9999, Value: h.Percentile(99.99)},
		{Name: StatMax, Value: h.Max()},
		{Name: StatMean, Value: h.Mean()},
		{Name: StatStdDev, Value: h.StdDev()},
		{Name: StatTM95, Value: tm95.Value, Excluded: tm95.Excluded},
		{Name: StatTM99, Value: tm99.Value, Excluded: tm99.Excluded},
		{Name: StatTM999, Value: tm999.Value, Excluded: tm999.Excluded},
	}
}

// Latency looks up a latency row by name.
func (r Report) Latency(name string) (int64, bool) {
	for _, s := range r.LatencySummary {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}

// FailedRequests is TotalRequests minus SuccessfulRequests.
func (r Report) FailedRequests() uint64 {
	return r.TotalRequests - r.SuccessfulRequests
}

// Operations returns the per-operation report names in sorted order.
func (rr RunReport) Operations() []string {
	names := make([]string, 0, len(rr.ByOperation))
	for name := range rr.ByOperation {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
