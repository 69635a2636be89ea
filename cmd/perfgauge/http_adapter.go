package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/httpclient"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
	"github.com/torosent/perfgauge/internal/tracing"
)

// httpAdapter issues one HTTP request per call. The endpoint picked by an
// endpointSelector overrides the default request and names the operation.
type httpAdapter struct {
	timeout   time.Duration
	builder   *httpclient.RequestBuilder
	propagate bool
}

func newHTTPAdapter(cfg *config.Config, provider auth.Provider, propagate bool) (*httpAdapter, error) {
	a := &httpAdapter{timeout: cfg.Timeout, propagate: propagate}
	if cfg.TargetURL == "" {
		// Every endpoint carries its own URL.
		return a, nil
	}
	source, err := httpclient.NewBodySource(cfg.Body, cfg.BodyFile)
	if err != nil {
		return nil, err
	}
	spec := httpclient.Spec{Method: cfg.Method, URL: cfg.TargetURL, Headers: cfg.Headers, Body: source}
	if provider != nil {
		a.builder, err = httpclient.NewRequestBuilderWithAuth(spec, provider)
	} else {
		a.builder, err = httpclient.NewRequestBuilder(spec)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request builder: %w", err)
	}
	return a, nil
}

func (a *httpAdapter) BuildClient(context.Context) (runner.Client, error) {
	return httpclient.NewClient(a.timeout), nil
}

func (a *httpAdapter) SendRequest(ctx context.Context, client runner.Client) metrics.Outcome {
	start := time.Now()
	builder, operation := a.builder, ""
	if tmpl := endpointFromContext(ctx); tmpl != nil {
		builder, operation = tmpl.builder, tmpl.name
	}
	if builder == nil {
		return metrics.Failed("Request builder missing", time.Since(start)).WithOperation(operation)
	}
	hc, ok := client.(*http.Client)
	if !ok {
		return metrics.Failed("Invalid client", time.Since(start)).WithOperation(operation)
	}

	req, err := builder.Build(ctx)
	if err != nil {
		return metrics.Failed(fallbackStatus(err), time.Since(start)).WithOperation(operation)
	}
	if a.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	var sent uint64
	if req.ContentLength > 0 {
		sent = uint64(req.ContentLength)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return metrics.Failed(fallbackStatus(err), time.Since(start)).WithOperation(operation)
	}
	received, err := httpclient.Drain(resp)
	elapsed := time.Since(start)
	if err != nil {
		return metrics.Failed(fallbackStatus(err), elapsed).WithOperation(operation)
	}

	status := httpStatus(resp.StatusCode)
	bytes := sent + uint64(received)
	if resp.StatusCode >= http.StatusBadRequest {
		return metrics.Failed(status, elapsed).WithBytes(bytes).WithOperation(operation)
	}
	return metrics.Succeeded(status, bytes, elapsed).WithOperation(operation)
}
