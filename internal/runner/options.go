package runner

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoAdapter is returned by Run when Options.Adapter is nil.
	ErrNoAdapter = errors.New("runner: adapter is required")
	// ErrNoRecorder is returned by Run when Options.Recorder is nil.
	ErrNoRecorder = errors.New("runner: recorder is required")
)

// Options configure the Runner.
type Options struct {
	Concurrency   int           // number of worker goroutines
	TotalRequests int64         // call count stop condition, used when Duration is 0
	Duration      time.Duration // wall-clock stop condition; takes precedence over TotalRequests
	RatePerSecond float64       // aggregate pacing across workers (0 means unlimited)
	ArrivalModel  ArrivalModel
	LoadPatterns  []LoadPattern
	RandomSeed    int64

	Adapter  Adapter
	Recorder Recorder
	Logger   *zap.Logger

	// Limiter replaces the limiter built from RatePerSecond and ArrivalModel.
	Limiter RateLimiter
	// Now overrides the clock used for deadline budgets.
	Now func() time.Time
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.TotalRequests < 0 {
		o.TotalRequests = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.Duration == 0 && o.TotalRequests == 0 {
		o.Duration = PlanDuration(o.LoadPatterns)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
