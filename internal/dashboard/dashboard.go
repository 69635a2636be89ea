// Package dashboard renders a live terminal view of a running test.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/perfgauge/internal/metrics"
)

// Snapshotter is the read side of the aggregator.
type Snapshotter interface {
	Snapshot() metrics.AggregateSnapshot
}

// TestConfig holds load test configuration parameters for display.
type TestConfig struct {
	Label       string
	Target      string        // URL, bucket or address under test
	Concurrency int           // number of workers
	Duration    time.Duration // 0 = count-bounded
	Total       int64         // 0 = time-bounded
	Rate        float64       // requests per second (0 = unlimited)
	Arrival     string        // uniform or poisson
	Timeout     time.Duration
	Retries     int
	Protocol    string
	ConfigFile  string
}

// Dashboard renders a live terminal UI for load test metrics.
type Dashboard struct {
	source       Snapshotter
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	statusList     *widgets.List
	operationList  *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph

	latencyHistory []float64
	peakRPS        float64
	lastTotal      uint64
	lastTaken      time.Time
	testConfig     TestConfig
}

// New initialises the terminal and builds the widget grid. shutdownFunc is
// called when the user presses q or Ctrl-C.
func New(source Snapshotter, cfg TestConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := newDashboard(source, cfg)
	d.ctx, d.cancel, d.shutdownFunc = ctx, cancel, shutdownFunc

	termWidth, termHeight := ui.TerminalDimensions()
	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.14, ui.NewCol(1.0, d.summaryPara)),
		ui.NewRow(0.18,
			ui.NewCol(0.5, d.rpsGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.6, d.latencySparkle),
			ui.NewCol(0.4, d.latencyPara),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.6, d.operationList),
			ui.NewCol(0.4, d.statusList),
		),
	)
	return d, nil
}

// newDashboard builds the widgets without touching the terminal.
func newDashboard(source Snapshotter, cfg TestConfig) *Dashboard {
	d := &Dashboard{
		source:         source,
		latencyHistory: make([]float64, 0, 100),
		testConfig:     cfg,
	}

	sparkline := widgets.NewSparkline()
	sparkline.Title = "p50 (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Summary"
	d.latencyPara.Text = "Waiting for data..."
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Summary"
	d.statusList.Rows = []string{"Awaiting data"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.operationList = widgets.NewList()
	d.operationList.Title = "Operations"
	d.operationList.Rows = []string{"Awaiting data"}
	d.operationList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.operationList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Test Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Totals"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	return d
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(d.source.Snapshot())
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.grid)
}

// update refreshes all widget data from one snapshot.
func (d *Dashboard) update(snap metrics.AggregateSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rr := metrics.BuildRunReport("", d.testConfig.Label, snap)
	c := rr.Combined

	currentRPS := c.RequestsPerSecond
	if !d.lastTaken.IsZero() {
		if dt := snap.Taken.Sub(d.lastTaken).Seconds(); dt > 0 && c.TotalRequests >= d.lastTotal {
			currentRPS = float64(c.TotalRequests-d.lastTotal) / dt
		}
	}
	d.lastTaken, d.lastTotal = snap.Taken, c.TotalRequests

	d.peakRPS = max(d.peakRPS, currentRPS, 1)
	d.rpsGauge.Percent = min(int(currentRPS/d.peakRPS*100), 100)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS (peak %.1f)", currentRPS, d.peakRPS)

	if c.TotalRequests > 0 {
		p50, _ := c.Latency(metrics.StatP50)
		d.latencyHistory = append(d.latencyHistory, float64(p50)/1000)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
	}

	successRate := "n/a"
	if c.SuccessRate != nil {
		successRate = fmt.Sprintf("%.1f%%", *c.SuccessRate)
	}
	d.summaryPara.Text = fmt.Sprintf("Target: %s\n%s\nElapsed: %s | Total: %d | Success Rate: %s",
		d.testConfig.Target,
		d.formatTestParams(),
		c.Elapsed.Round(time.Second),
		c.TotalRequests,
		successRate,
	)
	d.metricsPara.Text = fmt.Sprintf(
		"Total Requests:    %d\nSuccessful:        %d\nFailed:            %d\nCurrent RPS:       %.2f\nBytes:             %s\nBitrate:           %.3f Mbps",
		c.TotalRequests,
		c.SuccessfulRequests,
		c.FailedRequests(),
		currentRPS,
		humanize.Bytes(c.TotalBytes),
		c.BitsPerSecond/1_000_000,
	)
	d.latencyPara.Text = formatLatencyRows(c.LatencySummary)
	d.statusList.Rows = formatStatusRows(c.StatusSummary, 10)
	d.operationList.Rows = formatOperationRows(rr)
}

func formatLatencyRows(rows []metrics.LatencyStat) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("%-7s %9.2fms", row.Name, float64(row.Value)/1000))
	}
	return strings.Join(lines, "\n")
}

func formatStatusRows(rows []metrics.StatusCount, limit int) []string {
	if len(rows) == 0 {
		return []string{"[No requests yet](fg:green)"}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:yellow) %d", row.Label, row.Count))
	}
	return formatted
}

func formatOperationRows(rr metrics.RunReport) []string {
	if len(rr.ByOperation) == 0 {
		return []string{"[No named operations](fg:green)"}
	}
	names := rr.Operations()
	sort.SliceStable(names, func(i, j int) bool {
		return rr.ByOperation[names[i]].TotalRequests > rr.ByOperation[names[j]].TotalRequests
	})

	total := rr.Combined.TotalRequests
	formatted := make([]string, 0, len(names))
	for _, name := range names {
		op := rr.ByOperation[name]
		share := 0.0
		if total > 0 {
			share = float64(op.TotalRequests) / float64(total) * 100
		}
		p99, _ := op.Latency(metrics.StatP99)
		formatted = append(formatted, fmt.Sprintf("[%s](fg:cyan) | %5.1f%% | RPS %6.1f | P99 %7.2fms | Err %d",
			name, share, op.RequestsPerSecond, float64(p99)/1000, op.FailedRequests()))
	}
	return formatted
}

// formatTestParams formats the test configuration parameters for display.
func (d *Dashboard) formatTestParams() string {
	cfg := d.testConfig
	var parts []string

	if cfg.Protocol != "" {
		parts = append(parts, "Protocol: "+cfg.Protocol)
	}
	if cfg.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", cfg.Concurrency))
	}
	if cfg.Rate > 0 {
		rate := fmt.Sprintf("Rate: %g/s", cfg.Rate)
		if cfg.Arrival != "" && cfg.Arrival != "uniform" {
			rate += " (" + cfg.Arrival + ")"
		}
		parts = append(parts, rate)
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", cfg.Duration))
	}
	if cfg.Total > 0 {
		parts = append(parts, fmt.Sprintf("Total: %d", cfg.Total))
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", cfg.Retries))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, "Config: "+cfg.ConfigFile)
	}
	return strings.Join(parts, " | ")
}
