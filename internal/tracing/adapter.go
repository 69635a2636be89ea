package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

type tracingAdapter struct {
	runner.Decorator
	tracer   trace.Tracer
	protocol string
}

// WithTracing wraps an Adapter so each call runs inside a client span. The
// span carries the outcome's status, bytes and operation. A nil or disabled
// provider leaves the adapter untouched.
func WithTracing(a runner.Adapter, p *Provider, protocol string) runner.Adapter {
	if !p.Exporting() {
		return a
	}
	return &tracingAdapter{
		Decorator: runner.Decorator{Inner: a},
		tracer:    p.Tracer(),
		protocol:  protocol,
	}
}

func (t *tracingAdapter) SendRequest(ctx context.Context, client runner.Client) metrics.Outcome {
	ctx, span := StartCallSpan(ctx, t.tracer, t.protocol)
	o := t.Inner.SendRequest(ctx, client)
	FinishCallSpan(span, t.protocol, o)
	return o
}
