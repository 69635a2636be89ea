package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/dashboard"
	"github.com/torosent/perfgauge/internal/logging"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/output"
	"github.com/torosent/perfgauge/internal/runner"
	"github.com/torosent/perfgauge/internal/threshold"
	"github.com/torosent/perfgauge/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

var (
	errThresholdsFailed = errors.New("one or more thresholds failed")
	errRunAborted       = errors.New("run aborted")
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownWithTimeout(log, "tracing", tp.Shutdown)

	provider, err := buildAuthProvider(cfg)
	if err != nil {
		return err
	}
	if provider != nil {
		defer provider.Close()
	}

	rnd := newRandSource(cfg.Seed)
	base, err := newAdapterFromConfig(cfg, adapterDeps{
		auth:      provider,
		propagate: tp.ShouldPropagate(),
		rnd:       rnd,
		log:       log,
	})
	if err != nil {
		return err
	}
	if closer, ok := base.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Warn("closing adapter", zap.Error(err))
			}
		}()
	}

	var selector *endpointSelector
	if protocolOf(cfg) == config.ProtocolHTTP {
		if selector, err = newEndpointSelector(cfg, provider, rnd); err != nil {
			return err
		}
	}
	adapter := tracing.WithTracing(base, tp, string(protocolOf(cfg)))
	adapter = decorate(adapter, cfg, selector, rnd, log)

	agg := metrics.NewAggregator()
	r := runner.New(runner.Options{
		Concurrency:   cfg.Concurrency,
		TotalRequests: cfg.Total,
		Duration:      cfg.Duration,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		LoadPatterns:  toRunnerLoadPatterns(cfg.LoadPatterns),
		RandomSeed:    cfg.Seed,
		Adapter:       adapter,
		Recorder:      agg,
		Logger:        log,
	})

	// Progress always samples so the HTML report gets its history.
	interval := cfg.Output.ReportInterval
	if interval <= 0 {
		interval = progressInterval
	}
	var progressOut io.Writer = io.Discard
	if !cfg.Output.Dashboard && !cfg.Output.JSON && !cfg.Output.YAML {
		progressOut = os.Stdout
	}
	progress := output.NewProgressReporter(agg, interval, progressOut)
	progress.Track(r)

	var prom *output.PrometheusReporter
	if cfg.Output.PrometheusListen != "" || cfg.Output.PrometheusPushURL != "" {
		prom = output.NewPrometheusReporter(output.PrometheusOptions{
			PushURL: cfg.Output.PrometheusPushURL,
			Logger:  log,
		})
		if cfg.Output.PrometheusListen != "" {
			if _, err := prom.Listen(cfg.Output.PrometheusListen); err != nil {
				return err
			}
			defer shutdownWithTimeout(log, "prometheus listener", prom.Shutdown)
		}
	}

	reporters, closeReporters, err := buildReporters(cfg, prom, progress.History, thresholds, selector)
	if err != nil {
		return err
	}
	defer closeReporters()
	reporters.Reset()

	var dash *dashboard.Dashboard
	if cfg.Output.Dashboard {
		dash, err = dashboard.New(agg, dashboardConfig(cfg), cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	runID := metrics.NewRunID()
	progress.Start()
	stopLive := startLiveReports(prom, interval, agg, runID, cfg.Label)
	result, runErr := r.Run(ctx)
	stopLive()
	progress.Stop()
	if dash != nil {
		dash.Stop()
	}
	if runErr != nil {
		return runErr
	}

	rr := metrics.BuildRunReport(runID, cfg.Label, agg.Snapshot())
	output.LogDiagnostics(log, rr)
	results := threshold.NewEvaluator(thresholds).Evaluate(rr)
	if err := reporters.Report(rr); err != nil {
		log.Error("report output failed", zap.Error(err))
	}
	if len(results) > 0 && !cfg.Output.JSON && !cfg.Output.YAML {
		printThresholdResults(os.Stdout, results)
	}

	switch {
	case result.Status == runner.StatusAborted:
		return fmt.Errorf("%w: fatal outcome %q", errRunAborted, result.FatalStatus)
	case !threshold.AllPassed(results):
		return errThresholdsFailed
	}
	return nil
}

func protocolOf(cfg *config.Config) config.Protocol {
	if cfg.Protocol == "" {
		return config.ProtocolHTTP
	}
	return cfg.Protocol
}

// buildReporters assembles every configured output. The returned func closes
// the files opened for them.
func buildReporters(
	cfg *config.Config,
	prom *output.PrometheusReporter,
	history func() []output.DataPoint,
	thresholds []threshold.Threshold,
	selector *endpointSelector,
) (output.Multi, func(), error) {
	var (
		reporters output.Multi
		files     []*os.File
	)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	switch {
	case cfg.Output.JSON:
		reporters = append(reporters, output.NewJSONReporter(os.Stdout))
	case cfg.Output.YAML:
		reporters = append(reporters, output.NewYAMLReporter(os.Stdout))
	default:
		reporters = append(reporters, output.NewConsoleReporter(os.Stdout))
	}

	if path := strings.TrimSpace(cfg.Output.HTML); path != "" {
		f, err := os.Create(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create html report: %w", err)
		}
		files = append(files, f)
		reporters = append(reporters, output.NewHTMLReporter(f, history, thresholds, reportMetadata(cfg, selector)))
	}
	if path := strings.TrimSpace(cfg.Output.ResultsLog); path != "" {
		reporters = append(reporters, output.NewResultsLog(path))
	}
	if prom != nil {
		reporters = append(reporters, prom)
	}
	return reporters, closeAll, nil
}

// startLiveReports refreshes the Prometheus gauges with the running totals
// every interval until the returned func is called.
func startLiveReports(prom *output.PrometheusReporter, interval time.Duration, source output.Snapshotter, runID, label string) func() {
	if prom == nil {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = prom.Report(metrics.BuildRunReport(runID, label, source.Snapshot()))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func reportMetadata(cfg *config.Config, selector *endpointSelector) output.ReportMetadata {
	meta := output.ReportMetadata{
		Protocol:    string(protocolOf(cfg)),
		TargetURL:   targetOf(cfg),
		Concurrency: cfg.Concurrency,
	}
	for _, ep := range selector.testedEndpoints() {
		meta.TestedEndpoints = append(meta.TestedEndpoints, output.TestedEndpoint{
			Name:   ep.name,
			Method: ep.method,
			URL:    ep.url,
		})
	}
	return meta
}

// targetOf describes what the run is pointed at.
func targetOf(cfg *config.Config) string {
	switch protocolOf(cfg) {
	case config.ProtocolObjectStore:
		return "gs://" + cfg.ObjectStore.Bucket
	case config.ProtocolRedis:
		return "redis://" + cfg.Redis.Address
	default:
		return cfg.TargetURL
	}
}

func dashboardConfig(cfg *config.Config) dashboard.TestConfig {
	return dashboard.TestConfig{
		Label:       cfg.Label,
		Target:      targetOf(cfg),
		Concurrency: cfg.Concurrency,
		Duration:    cfg.EffectiveDuration(),
		Total:       cfg.Total,
		Rate:        cfg.Rate,
		Arrival:     string(toRunnerArrivalModel(cfg.Arrival.Model)),
		Timeout:     cfg.Timeout,
		Retries:     cfg.Retries,
		Protocol:    string(protocolOf(cfg)),
		ConfigFile:  cfg.ConfigFile,
	}
}

func printThresholdResults(w io.Writer, results []threshold.Result) {
	passed := 0
	for _, res := range results {
		if res.Pass {
			passed++
		}
	}
	fmt.Fprintf(w, "Thresholds: %d/%d passed\n", passed, len(results))
	for _, res := range results {
		mark := "PASS"
		if !res.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, res.Message)
	}
}

func shutdownWithTimeout(log *zap.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", zap.String("component", what), zap.Error(err))
	}
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

func toRunnerLoadPatterns(patterns []config.LoadPattern) []runner.LoadPattern {
	if len(patterns) == 0 {
		return nil
	}
	result := make([]runner.LoadPattern, len(patterns))
	for i, p := range patterns {
		result[i] = runner.LoadPattern{
			Name:     p.Name,
			Type:     runner.LoadPatternType(strings.ToLower(string(p.Type))),
			FromRPS:  p.FromRPS,
			ToRPS:    p.ToRPS,
			Duration: p.Duration,
			Steps:    toRunnerLoadSteps(p.Steps),
			RPS:      p.RPS,
		}
	}
	return result
}

func toRunnerLoadSteps(steps []config.LoadStep) []runner.LoadStep {
	if len(steps) == 0 {
		return nil
	}
	result := make([]runner.LoadStep, len(steps))
	for i, s := range steps {
		result[i] = runner.LoadStep{
			RPS:      s.RPS,
			Duration: s.Duration,
		}
	}
	return result
}
