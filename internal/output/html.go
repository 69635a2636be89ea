package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           metrics.RunReport
	History          []DataPoint
	ThresholdSummary *ThresholdSummary
	HistoryJSON      string
	Operations       []string
	Metadata         ReportMetadata
}

// ReportMetadata contains configuration information about the test run.
type ReportMetadata struct {
	Protocol        string
	TargetURL       string
	Concurrency     int
	TestedEndpoints []TestedEndpoint
}

// TestedEndpoint represents an endpoint configuration used in the test.
type TestedEndpoint struct {
	Name   string
	Method string
	URL    string
}

// ThresholdSummary counts passed and failed thresholds.
type ThresholdSummary struct {
	Total   int                   `json:"total"`
	Passed  int                   `json:"passed"`
	Failed  int                   `json:"failed"`
	Results []ThresholdResultJSON `json:"results"`
}

// ThresholdResultJSON is the serialisable form of a threshold.Result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Operation string  `json:"operation,omitempty"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// SummarizeThresholds converts evaluator results; nil when there are none.
func SummarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Operation: tr.Threshold.Operation,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// HTMLReporter renders the standalone HTML report on every Report call.
type HTMLReporter struct {
	w          io.Writer
	history    func() []DataPoint
	thresholds []threshold.Threshold
	metadata   ReportMetadata
}

// NewHTMLReporter returns a reporter writing to w. history may be nil.
func NewHTMLReporter(w io.Writer, history func() []DataPoint, thresholds []threshold.Threshold, metadata ReportMetadata) *HTMLReporter {
	return &HTMLReporter{w: w, history: history, thresholds: thresholds, metadata: metadata}
}

func (h *HTMLReporter) Report(rr metrics.RunReport) error {
	var history []DataPoint
	if h.history != nil {
		history = h.history()
	}
	results := threshold.NewEvaluator(h.thresholds).Evaluate(rr)
	return GenerateHTMLReport(h.w, rr, history, results, h.metadata)
}

func (h *HTMLReporter) Reset() {}

// GenerateHTMLReport generates a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, rr metrics.RunReport, history []DataPoint, thresholdResults []threshold.Result, metadata ReportMetadata) error {
	operations := rr.Operations()
	sort.SliceStable(operations, func(i, j int) bool {
		return rr.ByOperation[operations[i]].TotalRequests > rr.ByOperation[operations[j]].TotalRequests
	})

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           rr,
		History:          history,
		ThresholdSummary: SummarizeThresholds(thresholdResults),
		HistoryJSON:      string(historyJSON),
		Operations:       operations,
		Metadata:         metadata,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatMicros": formatMicros,
		"formatBytes":  humanize.Bytes,
		"formatPercent": func(part, total uint64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
		"latency": func(r metrics.Report, name string) string {
			v, ok := r.Latency(name)
			if !ok {
				return "-"
			}
			return formatMicros(v)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

func formatMicros(us int64) string {
	if us >= 1000 {
		return fmt.Sprintf("%.2fms", float64(us)/1000)
	}
	return fmt.Sprintf("%dµs", us)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>perfgauge report: {{.Report.Label}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background: #f4f6f8; color: #1f2933; line-height: 1.5; padding: 24px; }
        .container { max-width: 1280px; margin: 0 auto; background: #fff; border-radius: 6px; box-shadow: 0 1px 6px rgba(0,0,0,0.08); }
        header { background: #1f4e79; color: #fff; padding: 24px 32px; border-radius: 6px 6px 0 0; }
        header h1 { font-size: 1.7rem; }
        header .meta { opacity: 0.85; font-size: 0.9rem; }
        .content { padding: 32px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; margin-bottom: 32px; }
        .card { background: #f8fafc; border-radius: 6px; padding: 16px; border-top: 3px solid #1f4e79; }
        .card.success { border-top-color: #2f9e44; }
        .card.error { border-top-color: #e03131; }
        .card h3 { font-size: 0.8rem; color: #616e7c; text-transform: uppercase; }
        .card .value { font-size: 1.8rem; font-weight: 600; }
        .card .subvalue { font-size: 0.85rem; color: #616e7c; }
        .section { margin-bottom: 32px; }
        .section h2 { font-size: 1.3rem; margin-bottom: 12px; border-bottom: 1px solid #e4e7eb; }
        .chart { width: 100%; height: 300px; margin-bottom: 24px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #e4e7eb; }
        th { background: #f8fafc; font-size: 0.8rem; text-transform: uppercase; color: #52606d; }
        .badge { padding: 2px 10px; border-radius: 10px; font-size: 0.8rem; font-weight: 600; }
        .badge-success { background: #d3f9d8; color: #2b8a3e; }
        .badge-error { background: #ffe3e3; color: #c92a2a; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
<div class="container">
    <header>
        <h1>perfgauge report: {{.Report.Label}}</h1>
        {{if .Metadata.TargetURL}}<div class="meta">Target: {{.Metadata.TargetURL}}</div>{{end}}
        <div class="meta">Run {{.Report.RunID}} | {{if .Metadata.Protocol}}Protocol: {{.Metadata.Protocol}} | {{end}}{{if .Metadata.Concurrency}}Concurrency: {{.Metadata.Concurrency}} | {{end}}Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Combined.Elapsed}}</div>
    </header>
    <div class="content">
        {{with .Report.Combined}}
        <div class="grid">
            <div class="card"><h3>Total Requests</h3><div class="value">{{.TotalRequests}}</div></div>
            <div class="card success"><h3>Successful</h3><div class="value">{{.SuccessfulRequests}}</div><div class="subvalue">{{formatPercent .SuccessfulRequests .TotalRequests}}%</div></div>
            <div class="card error"><h3>Failed</h3><div class="value">{{.FailedRequests}}</div><div class="subvalue">{{formatPercent .FailedRequests .TotalRequests}}%</div></div>
            <div class="card"><h3>Requests/sec</h3><div class="value">{{formatFloat .RequestsPerSecond}}</div></div>
            <div class="card"><h3>Total Bytes</h3><div class="value">{{formatBytes .TotalBytes}}</div></div>
        </div>
        {{end}}

        {{if .History}}
        <div class="section">
            <h2>Performance Over Time</h2>
            <div id="rps-chart" class="chart"></div>
            <div id="latency-chart" class="chart"></div>
        </div>
        {{end}}

        <div class="section">
            <h2>Latency</h2>
            <table>
                <thead><tr><th>Statistic</th><th>Value</th><th>Excluded samples</th></tr></thead>
                <tbody>
                {{range .Report.Combined.LatencySummary}}
                <tr><td>{{.Name}}</td><td>{{formatMicros .Value}}</td><td>{{if .Excluded}}{{.Excluded}}{{end}}</td></tr>
                {{end}}
                </tbody>
            </table>
        </div>

        {{if .Report.Combined.StatusSummary}}
        <div class="section">
            <h2>Status Summary</h2>
            <table>
                <thead><tr><th>Status</th><th>Count</th><th>Share</th></tr></thead>
                <tbody>
                {{range .Report.Combined.StatusSummary}}
                <tr><td>{{.Label}}</td><td>{{.Count}}</td><td>{{formatPercent .Count $.Report.Combined.TotalRequests}}%</td></tr>
                {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .ThresholdSummary}}
        <div class="section">
            <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
            <table>
                <thead><tr><th>Threshold</th><th>Metric</th><th>Expected</th><th>Actual</th><th>Status</th></tr></thead>
                <tbody>
                {{range .ThresholdSummary.Results}}
                <tr>
                    <td>{{.Threshold}}</td>
                    <td>{{.Metric}}{{if .Operation}}[{{.Operation}}]{{end}} ({{.Aggregate}})</td>
                    <td>{{.Operator}} {{formatFloat .Expected}}</td>
                    <td>{{formatFloat .Actual}}</td>
                    <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                </tr>
                {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .Operations}}
        <div class="section">
            <h2>Operations</h2>
            <table>
                <thead><tr><th>Operation</th><th>Total</th><th>Success</th><th>Failed</th><th>RPS</th><th>p50</th><th>p99</th><th>tm95</th></tr></thead>
                <tbody>
                {{range .Operations}}
                {{$op := index $.Report.ByOperation .}}
                <tr>
                    <td><strong>{{.}}</strong></td>
                    <td>{{$op.TotalRequests}} ({{formatPercent $op.TotalRequests $.Report.Combined.TotalRequests}}%)</td>
                    <td>{{$op.SuccessfulRequests}}</td>
                    <td>{{$op.FailedRequests}}</td>
                    <td>{{formatFloat $op.RequestsPerSecond}}</td>
                    <td>{{latency $op "p50"}}</td>
                    <td>{{latency $op "p99"}}</td>
                    <td>{{latency $op "tm95"}}</td>
                </tr>
                {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .Metadata.TestedEndpoints}}
        <div class="section">
            <h2>Tested Endpoints</h2>
            <table>
                <thead><tr><th>Name</th><th>Method</th><th>URL</th></tr></thead>
                <tbody>
                {{range .Metadata.TestedEndpoints}}
                <tr><td>{{if .Name}}<strong>{{.Name}}</strong>{{else}}<em>(default)</em>{{end}}</td><td>{{if .Method}}{{.Method}}{{else}}-{{end}}</td><td>{{.URL}}</td></tr>
                {{end}}
                </tbody>
            </table>
        </div>
        {{end}}
    </div>
</div>
{{if .History}}
<script>
    const history = JSON.parse({{.HistoryJSON}});
    if (history && history.length > 0) {
        const start = new Date(history[0].timestamp).getTime();
        const xs = history.map(d => (new Date(d.timestamp).getTime() - start) / 1000);
        const opts = (title, series, yLabel, el) => ({
            title: title,
            width: el.offsetWidth,
            height: 300,
            scales: { x: { time: false } },
            series: [{ label: "Time (s)" }].concat(series),
            axes: [{ label: "Time (seconds)" }, { label: yLabel }]
        });
        const rpsEl = document.getElementById('rps-chart');
        new uPlot(opts("Requests Per Second", [{ label: "RPS", stroke: "#1f4e79", width: 2 }], "Requests/sec", rpsEl),
            [xs, history.map(d => d.current_rps)], rpsEl);
        const latEl = document.getElementById('latency-chart');
        new uPlot(opts("Latency Percentiles", [
                { label: "p50", stroke: "#2f9e44", width: 2 },
                { label: "p90", stroke: "#f08c00", width: 2 },
                { label: "p99", stroke: "#e03131", width: 2 }
            ], "Latency (ms)", latEl),
            [xs, history.map(d => d.p50_latency_ms), history.map(d => d.p90_latency_ms), history.map(d => d.p99_latency_ms)], latEl);
    }
</script>
{{end}}
</body>
</html>
`
