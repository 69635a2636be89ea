package main

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// randSource is a mutex-guarded generator shared by the workers.
type randSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// newRandSource seeds from seed, or from the clock when seed is zero.
func newRandSource(seed int64) *randSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randSource{rnd: rand.New(rand.NewSource(seed))}
}

func (r *randSource) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

func (r *randSource) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

func (r *randSource) jitter(max time.Duration) time.Duration {
	if r == nil || max <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.rnd.Int63n(int64(max)))
}

// newRetryPolicy retries transient failures with exponential backoff plus
// jitter. base replaces the default first delay when positive.
func newRetryPolicy(retries int, base time.Duration, source *randSource) runner.RetryPolicy {
	if base <= 0 {
		base = baseRetryDelay
	}
	return runner.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: retryable,
		DelayFunc: func(attempt int, _ metrics.Outcome) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * base
			if backoff > maxRetryDelay || backoff <= 0 {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

// retryable reports whether a failed outcome is worth another attempt:
// 429 and 5xx responses, transient gRPC codes and transport errors.
func retryable(o metrics.Outcome) bool {
	if o.Success || o.Fatal {
		return false
	}
	if code, ok := httpStatusCode(o.Status); ok {
		return code == http.StatusTooManyRequests || code >= 500
	}
	switch o.Status {
	case codes.Unavailable.String(), codes.ResourceExhausted.String(), codes.Aborted.String():
		return true
	case codes.InvalidArgument.String(), codes.NotFound.String(), codes.PermissionDenied.String(),
		codes.Unauthenticated.String(), codes.Unimplemented.String(), codes.FailedPrecondition.String():
		return false
	case "Context canceled":
		return false
	}
	return true
}
