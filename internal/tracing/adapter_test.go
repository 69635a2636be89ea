package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

type stubAdapter struct {
	outcome metrics.Outcome
	sawSpan bool
}

func (s *stubAdapter) BuildClient(context.Context) (runner.Client, error) { return nil, nil }

func (s *stubAdapter) SendRequest(ctx context.Context, _ runner.Client) metrics.Outcome {
	s.sawSpan = trace.SpanContextFromContext(ctx).IsValid()
	return s.outcome
}

func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &Provider{tp: tp, tracer: tp.Tracer("test")}, exporter
}

func TestWithTracingRecordsOutcome(t *testing.T) {
	p, exporter := newTestProvider(t)
	inner := &stubAdapter{outcome: metrics.Failed("NotFound", 0).WithOperation("read")}
	a := WithTracing(inner, p, "objectstore")

	o := a.SendRequest(context.Background(), nil)
	if o.Status != "NotFound" {
		t.Fatalf("outcome status = %q, want NotFound", o.Status)
	}
	if !inner.sawSpan {
		t.Fatal("inner adapter did not receive a span context")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "objectstore read" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "objectstore read")
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
}

func TestWithTracingDisabledReturnsInner(t *testing.T) {
	inner := &stubAdapter{}
	if got := WithTracing(inner, nil, "http"); got != runner.Adapter(inner) {
		t.Fatal("nil provider should not wrap the adapter")
	}
	if got := WithTracing(inner, &Provider{}, "http"); got != runner.Adapter(inner) {
		t.Fatal("disabled provider should not wrap the adapter")
	}
}
