package output

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/torosent/perfgauge/internal/metrics"
)

// combinedOperation labels series that cover every outcome.
const combinedOperation = "all"

// PrometheusReporter exposes the latest report as gauges on a private
// registry, optionally serving them on /metrics and pushing them to a
// Pushgateway.
type PrometheusReporter struct {
	registry *prometheus.Registry
	log      *zap.Logger

	requests    *prometheus.GaugeVec
	successful  *prometheus.GaugeVec
	bytes       *prometheus.GaugeVec
	rps         *prometheus.GaugeVec
	successRate *prometheus.GaugeVec
	latency     *prometheus.GaugeVec
	status      *prometheus.GaugeVec
	elapsed     *prometheus.GaugeVec

	pushURL string
	server  *http.Server
}

// PrometheusOptions configure a PrometheusReporter.
type PrometheusOptions struct {
	// PushURL is a Pushgateway base URL; empty disables pushing.
	PushURL string
	Logger  *zap.Logger
}

// NewPrometheusReporter registers the perfgauge gauges on a fresh registry.
func NewPrometheusReporter(opts PrometheusOptions) *PrometheusReporter {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	labels := []string{"run", "label", "operation"}
	gauge := func(name, help string, extra ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perfgauge",
			Name:      name,
			Help:      help,
		}, append(append([]string{}, labels...), extra...))
	}

	p := &PrometheusReporter{
		registry:    prometheus.NewRegistry(),
		log:         log,
		requests:    gauge("requests", "Requests issued in the reported window."),
		successful:  gauge("successful_requests", "Successful requests in the reported window."),
		bytes:       gauge("bytes", "Payload bytes processed in the reported window."),
		rps:         gauge("requests_per_second", "Request rate over the reported window."),
		successRate: gauge("success_rate_percent", "Share of successful requests."),
		latency:     gauge("latency_microseconds", "Latency summary rows.", "stat"),
		status:      gauge("status", "Requests per status label.", "status"),
		elapsed:     gauge("elapsed_seconds", "Length of the reported window."),
		pushURL:     opts.PushURL,
	}
	p.registry.MustRegister(p.requests, p.successful, p.bytes, p.rps, p.successRate, p.latency, p.status, p.elapsed)
	return p
}

// Registry exposes the underlying registry.
func (p *PrometheusReporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusReporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Listen serves /metrics on addr until Shutdown. It returns the bound address.
func (p *PrometheusReporter) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("prometheus listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Warn("prometheus listener stopped", zap.Error(err))
		}
	}()
	p.log.Info("serving prometheus metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown stops the listener started by Listen.
func (p *PrometheusReporter) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

func (p *PrometheusReporter) Report(rr metrics.RunReport) error {
	p.set(rr, combinedOperation, rr.Combined)
	for name, r := range rr.ByOperation {
		p.set(rr, name, r)
	}

	if p.pushURL == "" {
		return nil
	}
	// Series already carry the run label, so the group key is the job only.
	pusher := push.New(p.pushURL, "perfgauge").Gatherer(p.registry)
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.pushURL, err)
	}
	return nil
}

func (p *PrometheusReporter) set(rr metrics.RunReport, operation string, r metrics.Report) {
	base := prometheus.Labels{"run": rr.RunID, "label": rr.Label, "operation": operation}

	p.requests.With(base).Set(float64(r.TotalRequests))
	p.successful.With(base).Set(float64(r.SuccessfulRequests))
	p.bytes.With(base).Set(float64(r.TotalBytes))
	p.rps.With(base).Set(r.RequestsPerSecond)
	p.elapsed.With(base).Set(r.ElapsedSeconds)
	if r.SuccessRate != nil {
		p.successRate.With(base).Set(*r.SuccessRate)
	}
	for _, row := range r.LatencySummary {
		p.latency.With(withLabel(base, "stat", row.Name)).Set(float64(row.Value))
	}
	for _, row := range r.StatusSummary {
		p.status.With(withLabel(base, "status", row.Label)).Set(float64(row.Count))
	}
}

// Reset drops every series so the next report starts from a clean slate.
func (p *PrometheusReporter) Reset() {
	for _, g := range []*prometheus.GaugeVec{p.requests, p.successful, p.bytes, p.rps, p.successRate, p.latency, p.status, p.elapsed} {
		g.Reset()
	}
}

func withLabel(base prometheus.Labels, key, value string) prometheus.Labels {
	out := make(prometheus.Labels, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
