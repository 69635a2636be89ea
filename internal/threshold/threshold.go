// Package threshold evaluates pass/fail assertions against a run report.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/perfgauge/internal/metrics"
)

// Metric families.
const (
	MetricLatency  = "latency"
	MetricFailures = "failures"
	MetricRequests = "requests"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // latency, failures, requests
	Operation string  // optional operation name; empty means the combined report
	Aggregate string  // e.g. "p99", "tm95", "mean", "rate", "count"
	Operator  string  // <, <=, >, >=, ==
	Value     float64 // latency values are milliseconds
	Raw       string  // original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against run reports.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against rr.
func (e *Evaluator) Evaluate(rr metrics.RunReport) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, rr))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, rr metrics.RunReport) Result {
	report := rr.Combined
	if t.Operation != "" {
		r, ok := rr.ByOperation[t.Operation]
		if !ok {
			return Result{
				Threshold: t,
				Message:   fmt.Sprintf("error: no requests recorded for operation %q", t.Operation),
			}
		}
		report = r
	}

	actual, err := extractMetricValue(t, report)
	if err != nil {
		return Result{
			Threshold: t,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z]+)(?:\[([A-Za-z0-9_./:-]+)\])?:([a-z0-9.]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "latency:p99 < 500"          (latency percentile in ms)
//   - "latency:tm95 < 200"         (truncated mean in ms)
//   - "latency[read]:p50 < 20"     (one named operation)
//   - "failures:rate < 0.01"       (failure rate as decimal)
//   - "failures:count < 10"        (failure count)
//   - "requests:rate > 100"        (requests per second)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'latency:p99 < 500')", s)
	}

	metric, operation, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4], matches[5]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := validAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, failures, requests)", metric)
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Operation: operation,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

var validAggregates = map[string][]string{
	MetricLatency:  {"min", "p50", "p90", "p99", "p99.9", "p99.99", "max", "mean", "avg", "stddev", "tm95", "tm99", "tm99.9"},
	MetricFailures: {"rate", "count"},
	MetricRequests: {"rate", "count"},
}

var validOperators = []string{"<", "<=", ">", ">=", "=="}

// latencyRows maps aggregate names onto report latency rows.
var latencyRows = map[string]string{
	"min":    metrics.StatMin,
	"p50":    metrics.StatP50,
	"p90":    metrics.StatP90,
	"p99":    metrics.StatP99,
	"p99.9":  metrics.StatP999,
	"p99.99": metrics.StatP9999,
	"max":    metrics.StatMax,
	"mean":   metrics.StatMean,
	"avg":    metrics.StatMean,
	"stddev": metrics.StatStdDev,
	"tm95":   metrics.StatTM95,
	"tm99":   metrics.StatTM99,
	"tm99.9": metrics.StatTM999,
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, r metrics.Report) (float64, error) {
	switch t.Metric {
	case MetricLatency:
		row, ok := latencyRows[t.Aggregate]
		if !ok {
			return 0, fmt.Errorf("unsupported aggregate %q for latency", t.Aggregate)
		}
		us, ok := r.Latency(row)
		if !ok {
			return 0, fmt.Errorf("latency row %q missing from report", row)
		}
		return float64(us) / 1000, nil
	case MetricFailures:
		switch t.Aggregate {
		case "count":
			return float64(r.FailedRequests()), nil
		case "rate":
			if r.TotalRequests == 0 {
				return 0, nil
			}
			return float64(r.FailedRequests()) / float64(r.TotalRequests), nil
		}
		return 0, fmt.Errorf("unsupported aggregate %q for failures (use 'count' or 'rate')", t.Aggregate)
	case MetricRequests:
		switch t.Aggregate {
		case "count":
			return float64(r.TotalRequests), nil
		case "rate":
			return r.RequestsPerSecond, nil
		}
		return 0, fmt.Errorf("unsupported aggregate %q for requests (use 'count' or 'rate')", t.Aggregate)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
