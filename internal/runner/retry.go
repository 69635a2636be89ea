package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/perfgauge/internal/metrics"
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                                   // total attempts including initial try
	Delay       time.Duration                                         // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(metrics.Outcome) bool                            // predicate; if nil, every non-fatal failure is retried
	DelayFunc   func(attempt int, last metrics.Outcome) time.Duration // dynamic backoff; attempt is 1-based
}

// Decorator wraps an Adapter and forwards the optional setup interfaces.
type Decorator struct {
	Inner Adapter
}

func (d Decorator) BuildClient(ctx context.Context) (Client, error) {
	return d.Inner.BuildClient(ctx)
}

func (d Decorator) InitializeWorkload(ctx context.Context, client Client) error {
	if init, ok := d.Inner.(WorkloadInitializer); ok {
		return init.InitializeWorkload(ctx, client)
	}
	return nil
}

func (d Decorator) ClientScope() ClientScope {
	return scopeOf(d.Inner)
}

// Close forwards to the wrapped adapter when it holds resources.
func (d Decorator) Close() error {
	if c, ok := d.Inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type retryAdapter struct {
	Decorator
	policy RetryPolicy
}

// WithRetry wraps an Adapter so failed, non-fatal outcomes are retried. The
// reported outcome is the last attempt's, with Duration and Bytes covering
// every attempt.
func WithRetry(a Adapter, policy RetryPolicy) Adapter {
	if policy.MaxAttempts <= 1 {
		return a // no retries needed
	}
	return &retryAdapter{Decorator: Decorator{Inner: a}, policy: policy}
}

func (r *retryAdapter) SendRequest(ctx context.Context, client Client) metrics.Outcome {
	var (
		last    metrics.Outcome
		elapsed time.Duration
		bytes   uint64
	)
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		last = r.Inner.SendRequest(ctx, client)
		elapsed += last.Duration
		bytes += last.Bytes
		if last.Success || last.Fatal {
			break
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(last) {
			break
		}

		var delay time.Duration
		if r.policy.DelayFunc != nil {
			delay = r.policy.DelayFunc(attempt, last)
		} else {
			delay = r.policy.Delay
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				last.Duration, last.Bytes = elapsed, bytes
				return last
			}
		}
	}
	last.Duration, last.Bytes = elapsed, bytes
	return last
}

type loggingAdapter struct {
	Decorator
	log *zap.Logger
}

// WithLogging wraps an Adapter to log failed outcomes.
func WithLogging(a Adapter, log *zap.Logger) Adapter {
	if log == nil {
		return a
	}
	return &loggingAdapter{Decorator: Decorator{Inner: a}, log: log}
}

func (l *loggingAdapter) SendRequest(ctx context.Context, client Client) metrics.Outcome {
	o := l.Inner.SendRequest(ctx, client)
	if o.Success {
		return o
	}
	fields := []zap.Field{
		zap.String("status", o.Status),
		zap.Duration("duration", o.Duration),
	}
	if o.Operation != "" {
		fields = append(fields, zap.String("operation", o.Operation))
	}
	if o.Fatal {
		l.log.Error("fatal request failure", fields...)
	} else {
		l.log.Warn("request failed", fields...)
	}
	return o
}
