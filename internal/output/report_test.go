package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/perfgauge/internal/metrics"
)

// sampleRunReport records 1000 outcomes with latencies 0..999µs over two
// seconds of a fake clock, split across two operations.
func sampleRunReport(latencyOffset time.Duration) metrics.RunReport {
	return sampleRunReportStep(latencyOffset, time.Microsecond)
}

func sampleRunReportStep(latencyOffset, step time.Duration) metrics.RunReport {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	agg := metrics.NewAggregator(metrics.WithClock(clock))
	for i := 0; i < 1000; i++ {
		o := metrics.Succeeded("200 OK", 100, latencyOffset+time.Duration(i)*step)
		op := "read"
		if i%4 == 0 {
			o = metrics.Failed("503 Service Unavailable", latencyOffset+time.Duration(i)*step)
			op = "write"
		}
		agg.Record(o.WithOperation(op))
	}
	now = now.Add(2 * time.Second)
	return metrics.BuildRunReport("01TESTRUN", "bench", agg.Snapshot())
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleRunReport(0))

	out := buf.String()
	for _, want := range []string{
		"Run: 01TESTRUN",
		"Test: bench",
		"Requests:          1000",
		"Request rate:      500.000 per second",
		"Success rate:      75.000%",
		"Total bytes:       75 kB",
		"Bitrate:           0.300 Mbps",
		"200 OK: 750",
		"503 Service Unavailable: 250",
		"--- Operation: read ---",
		"--- Operation: write ---",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	// Latency stays in microseconds while the minimum is below 1ms.
	if !strings.Contains(out, "µs") || strings.Contains(out, "ms\n") {
		t.Errorf("expected microsecond latency rows\n%s", out)
	}
	for _, stat := range []string{"Min", "p50", "p90", "p99", "p99.9", "p99.99", "Max", "Mean", "StdDev", "tm95", "tm99", "tm99.9"} {
		if !strings.Contains(out, stat+" ") {
			t.Errorf("latency row %q missing", stat)
		}
	}
}

func TestPrintReportSwitchesToMilliseconds(t *testing.T) {
	var buf bytes.Buffer
	// Every row, StdDev included, must reach 1ms.
	PrintReport(&buf, sampleRunReportStep(5*time.Millisecond, 10*time.Microsecond))
	out := buf.String()
	if !strings.Contains(out, "ms\n") || strings.Contains(out, "µs") {
		t.Errorf("expected millisecond latency rows\n%s", out)
	}
}

func TestPrintReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	rr := metrics.BuildRunReport("", "", metrics.NewAggregator().Snapshot())
	PrintReport(&buf, rr)
	if !strings.Contains(buf.String(), "Success rate:      n/a") {
		t.Errorf("empty report should print n/a success rate\n%s", buf.String())
	}
}

func TestWriteLatencyAlignment(t *testing.T) {
	var buf bytes.Buffer
	writeLatency(&buf, []metrics.LatencyStat{
		{Name: "Min", Value: 5},
		{Name: "p99.9", Value: 999},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0] != "Min   :   5µs" || lines[1] != "p99.9 : 999µs" {
		t.Errorf("unexpected alignment:\n%q\n%q", lines[0], lines[1])
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONReporter(&buf).Report(sampleRunReport(0)); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["run_id"] != "01TESTRUN" {
		t.Errorf("run_id = %v", decoded["run_id"])
	}
	ops, ok := decoded["by_operation"].(map[string]any)
	if !ok || len(ops) != 2 {
		t.Errorf("by_operation = %v", decoded["by_operation"])
	}
}

func TestJSONReportOmitsSuccessRateWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	rr := metrics.BuildRunReport("id", "", metrics.NewAggregator().Snapshot())
	if err := PrintJSONReport(&buf, rr); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "success_rate") {
		t.Errorf("success_rate should be omitted\n%s", buf.String())
	}
}

func TestYAMLReporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewYAMLReporter(&buf).Report(sampleRunReport(0)); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	var decoded struct {
		RunID    string `yaml:"run_id"`
		Combined struct {
			TotalRequests uint64 `yaml:"total_requests"`
		} `yaml:"combined"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded.RunID != "01TESTRUN" || decoded.Combined.TotalRequests != 1000 {
		t.Errorf("decoded = %+v", decoded)
	}
}

type recordingReporter struct {
	reports int
	resets  int
	err     error
}

func (r *recordingReporter) Report(metrics.RunReport) error {
	r.reports++
	return r.err
}

func (r *recordingReporter) Reset() { r.resets++ }

func TestMultiReporter(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recordingReporter{}, &recordingReporter{err: boom}
	m := Multi{a, b}

	err := m.Report(sampleRunReport(0))
	if !errors.Is(err, boom) {
		t.Errorf("Report() error = %v, want boom", err)
	}
	m.Reset()
	if a.reports != 1 || b.reports != 1 || a.resets != 1 || b.resets != 1 {
		t.Errorf("calls: a=%+v b=%+v", a, b)
	}
}
