package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/torosent/perfgauge/internal/metrics"
)

// Reporter publishes run reports. Reset clears any state the reporter keeps
// between two reports.
type Reporter interface {
	Report(rr metrics.RunReport) error
	Reset()
}

// Multi fans a report out to every reporter and joins their errors.
type Multi []Reporter

func (m Multi) Report(rr metrics.RunReport) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(rr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Reset() {
	for _, r := range m {
		r.Reset()
	}
}

// ConsoleReporter prints the human-readable summary.
type ConsoleReporter struct {
	w io.Writer
}

// NewConsoleReporter returns a reporter writing to w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (c *ConsoleReporter) Report(rr metrics.RunReport) error {
	PrintReport(c.w, rr)
	return nil
}

func (c *ConsoleReporter) Reset() {}

// PrintReport outputs the combined report followed by one section per
// operation.
func PrintReport(w io.Writer, rr metrics.RunReport) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if rr.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", rr.RunID)
	}
	writeReport(w, rr.Combined)

	for _, name := range rr.Operations() {
		fmt.Fprintf(w, "\n--- Operation: %s ---\n", name)
		writeReport(w, rr.ByOperation[name])
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}

func writeReport(w io.Writer, r metrics.Report) {
	fmt.Fprintf(w, "Test: %s\n", r.Label)
	fmt.Fprintf(w, "Duration:          %s\n", r.Elapsed)
	fmt.Fprintf(w, "Requests:          %d\n", r.TotalRequests)
	fmt.Fprintf(w, "Request rate:      %.3f per second\n", r.RequestsPerSecond)
	if r.SuccessRate != nil {
		fmt.Fprintf(w, "Success rate:      %.3f%%\n", *r.SuccessRate)
	} else {
		fmt.Fprintln(w, "Success rate:      n/a")
	}
	fmt.Fprintf(w, "Total bytes:       %s\n", humanize.Bytes(r.TotalBytes))
	fmt.Fprintf(w, "Bitrate:           %.3f Mbps\n", r.BitsPerSecond/1_000_000)

	if len(r.StatusSummary) > 0 {
		fmt.Fprintln(w, "\nSummary:")
		for _, row := range r.StatusSummary {
			fmt.Fprintf(w, "%s: %d\n", row.Label, row.Count)
		}
	}

	if len(r.LatencySummary) > 0 {
		fmt.Fprintln(w, "\nLatency:")
		writeLatency(w, r.LatencySummary)
	}
}

// writeLatency aligns the latency rows and switches to milliseconds once the
// smallest value reaches one millisecond.
func writeLatency(w io.Writer, rows []metrics.LatencyStat) {
	labelWidth, valueWidth := 0, 0
	minValue := int64(1_000_000_000)
	for _, row := range rows {
		labelWidth = max(labelWidth, len(row.Name))
		valueWidth = max(valueWidth, len(fmt.Sprint(row.Value)))
		minValue = min(minValue, row.Value)
	}
	useMs := minValue >= 1_000

	for _, row := range rows {
		if useMs {
			fmt.Fprintf(w, "%-*s : %*.2fms\n", labelWidth, row.Name, valueWidth, float64(row.Value)/1000)
		} else {
			fmt.Fprintf(w, "%-*s : %*dµs\n", labelWidth, row.Name, valueWidth, row.Value)
		}
	}
}

// JSONReporter writes each report as an indented JSON document.
type JSONReporter struct {
	w io.Writer
}

// NewJSONReporter returns a reporter writing to w.
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{w: w}
}

func (j *JSONReporter) Report(rr metrics.RunReport) error {
	return PrintJSONReport(j.w, rr)
}

func (j *JSONReporter) Reset() {}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, rr metrics.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rr)
}

// YAMLReporter writes each report as a YAML document.
type YAMLReporter struct {
	w io.Writer
}

// NewYAMLReporter returns a reporter writing to w.
func NewYAMLReporter(w io.Writer) *YAMLReporter {
	return &YAMLReporter{w: w}
}

func (y *YAMLReporter) Report(rr metrics.RunReport) error {
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(rr); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return enc.Close()
}

func (y *YAMLReporter) Reset() {}
