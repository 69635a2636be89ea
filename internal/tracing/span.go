package tracing

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"

	"github.com/torosent/perfgauge/internal/metrics"
)

// StartCallSpan starts the client span of one load-test call. The span is
// named "<protocol> call" until FinishCallSpan learns the operation.
func StartCallSpan(ctx context.Context, tracer trace.Tracer, protocol string) (context.Context, trace.Span) {
	return tracer.Start(ctx, protocol+" call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", protocol)),
	)
}

// FinishCallSpan records o on span and ends it. A named operation renames
// the span to "<protocol> <operation>"; a failed call marks it as an error
// with the outcome's status as the description.
func FinishCallSpan(span trace.Span, protocol string, o metrics.Outcome) {
	if o.Operation != "" {
		span.SetName(protocol + " " + o.Operation)
		span.SetAttributes(attribute.String("perfgauge.operation", o.Operation))
	}
	span.SetAttributes(
		attribute.String("perfgauge.status", o.Status),
		attribute.Int64("perfgauge.bytes", int64(o.Bytes)),
		attribute.Int64("perfgauge.duration_us", o.Duration.Microseconds()),
		attribute.Bool("perfgauge.fatal", o.Fatal),
	)
	if o.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(errors.New(o.Status))
		span.SetStatus(codes.Error, o.Status)
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// grpcMetadataCarrier adapts grpc metadata.MD to the OTel TextMapCarrier interface.
type grpcMetadataCarrier metadata.MD

func (c grpcMetadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c grpcMetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c grpcMetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectGRPCMetadata injects W3C trace context into gRPC metadata.
func InjectGRPCMetadata(ctx context.Context, md metadata.MD) {
	otel.GetTextMapPropagator().Inject(ctx, grpcMetadataCarrier(md))
}
