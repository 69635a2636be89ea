package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ArrivalModel selects how permits are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// RateLimiter is the single pacing authority shared by all workers of a run.
// A rate of zero or less means unlimited.
type RateLimiter interface {
	// Acquire blocks until the caller may issue one call. It only returns an
	// error when ctx ends first.
	Acquire(ctx context.Context) error
	SetRate(rps float64)
	Rate() float64
}

// NewRateLimiter builds the limiter for model at rps. seed drives the
// Poisson sampler.
func NewRateLimiter(model ArrivalModel, rps float64, seed int64) RateLimiter {
	if model == ArrivalModelPoisson {
		return NewPoissonLimiter(rps, rand.New(rand.NewSource(seed)).ExpFloat64)
	}
	return NewUniformLimiter(rps)
}

// UniformLimiter spaces permits evenly. It wraps one rate.Limiter with a
// burst of one: each Acquire reserves the next free slot and sleeps until
// it, so waiting workers are served in arrival order.
type UniformLimiter struct {
	mu      sync.RWMutex
	rps     float64
	limiter *rate.Limiter
}

func NewUniformLimiter(rps float64) *UniformLimiter {
	u := &UniformLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	u.SetRate(rps)
	return u
}

func (u *UniformLimiter) Acquire(ctx context.Context) error {
	u.mu.RLock()
	unlimited := u.rps <= 0
	u.mu.RUnlock()
	if unlimited {
		return nil
	}
	return u.limiter.Wait(ctx)
}

func (u *UniformLimiter) SetRate(rps float64) {
	if rps < 0 || math.IsNaN(rps) {
		rps = 0
	}
	u.mu.Lock()
	u.rps = rps
	u.mu.Unlock()

	if rps == 0 {
		u.limiter.SetLimit(rate.Inf)
		return
	}
	u.limiter.SetLimit(rate.Limit(rps))
	u.limiter.SetBurst(1)
}

func (u *UniformLimiter) Rate() float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.rps
}

// PoissonLimiter hands out permits whose gaps are exponentially distributed
// with mean 1/rps. Slots are assigned under one lock so the aggregate rate
// across workers tracks rps.
type PoissonLimiter struct {
	mu     sync.Mutex
	rps    float64
	next   time.Time
	sample func() float64
	now    func() time.Time
}

// NewPoissonLimiter uses sample to draw unit-mean exponential variates.
func NewPoissonLimiter(rps float64, sample func() float64) *PoissonLimiter {
	if sample == nil {
		sample = rand.ExpFloat64
	}
	p := &PoissonLimiter{sample: sample, now: time.Now}
	p.SetRate(rps)
	return p
}

func (p *PoissonLimiter) Acquire(ctx context.Context) error {
	delay := p.reserve()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve claims the next arrival slot and returns how long to wait for it.
func (p *PoissonLimiter) reserve() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rps <= 0 {
		return 0
	}
	now := p.now()
	if p.next.Before(now) {
		p.next = now
	}
	gap := float64(time.Second) * p.sample() / p.rps
	if gap > math.MaxInt64 {
		gap = math.MaxInt64
	}
	p.next = p.next.Add(time.Duration(gap))
	return p.next.Sub(now)
}

func (p *PoissonLimiter) SetRate(rps float64) {
	if rps < 0 || math.IsNaN(rps) {
		rps = 0
	}
	p.mu.Lock()
	p.rps = rps
	p.mu.Unlock()
}

func (p *PoissonLimiter) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rps
}
