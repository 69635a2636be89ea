package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusAborted     Status = "aborted"
	StatusInterrupted Status = "interrupted"
)

// Result captures execution summary.
type Result struct {
	Issued int64
	Fatal  int64
	Status Status
	// FatalStatus is the status label of the first fatal outcome.
	FatalStatus string
	Duration    time.Duration
}

// SetupError reports a failure before any call was issued.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

const (
	StageBuildClient        = "build_client"
	StageInitializeWorkload = "initialize_workload"
)

// Runner drives Options.Concurrency workers against an Adapter.
type Runner struct {
	opt     Options
	plan    *patternPlan
	limiter RateLimiter
	log     *zap.Logger

	mu     sync.Mutex
	budget WorkBudget
}

func New(opt Options) *Runner {
	opt.normalize()
	plan := compilePatternPlan(opt.LoadPatterns)
	limiter := opt.Limiter
	if limiter == nil {
		initial := opt.RatePerSecond
		if plan != nil {
			rps, _ := plan.rateAt(0)
			initial = patternRate(rps)
		}
		limiter = NewRateLimiter(opt.ArrivalModel, initial, opt.RandomSeed)
	}
	return &Runner{opt: opt, plan: plan, limiter: limiter, log: opt.Logger}
}

// Limiter exposes the shared limiter, mainly for progress output.
func (r *Runner) Limiter() RateLimiter {
	return r.limiter
}

// Budget returns the budget of the current run, or nil before Run has
// finished setup.
func (r *Runner) Budget() WorkBudget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.budget
}

type runState struct {
	issued      atomic.Int64
	fatal       atomic.Int64
	abortOnce   sync.Once
	fatalStatus string
}

func (s *runState) abort(status string) {
	s.abortOnce.Do(func() { s.fatalStatus = status })
}

// Run builds clients, runs the optional workload initializer and then drives
// workers until the budget is exhausted. Setup failures are returned as
// *SetupError and nothing is recorded. Call failures never surface as errors.
//
// Cancelling ctx stops workers at their next budget check or pacing wait;
// calls already in flight run to completion.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.opt.Adapter == nil {
		return Result{}, ErrNoAdapter
	}
	if r.opt.Recorder == nil {
		return Result{}, ErrNoRecorder
	}

	clients, err := r.buildClients(ctx)
	if err != nil {
		return Result{}, err
	}
	defer r.closeClients(clients)

	if init, ok := r.opt.Adapter.(WorkloadInitializer); ok {
		if err := init.InitializeWorkload(ctx, clients[0]); err != nil {
			return Result{}, &SetupError{Stage: StageInitializeWorkload, Err: err}
		}
	}

	// The measurement window starts once setup is done.
	if rs, ok := r.opt.Recorder.(interface{ Reset() }); ok {
		rs.Reset()
	}

	start := r.opt.Now()
	budget := r.newBudget(start)
	r.mu.Lock()
	r.budget = budget
	r.mu.Unlock()
	r.log.Info("run started",
		zap.Int("concurrency", r.opt.Concurrency),
		zap.Int64("total_requests", r.opt.TotalRequests),
		zap.Duration("duration", r.opt.Duration),
		zap.Float64("rate", r.limiter.Rate()),
		zap.String("arrival_model", string(r.opt.ArrivalModel)),
	)

	var (
		st      runState
		workers errgroup.Group
		aux     errgroup.Group
	)
	done := make(chan struct{})

	aux.Go(func() error {
		select {
		case <-ctx.Done():
			budget.Exhaust()
		case <-done:
		}
		return nil
	})
	if r.plan != nil {
		aux.Go(func() error {
			r.runPatternController(done, budget)
			return nil
		})
	}

	// Calls are never preempted by the run context; adapters enforce their
	// own timeouts.
	callCtx := context.WithoutCancel(ctx)
	for i := 0; i < r.opt.Concurrency; i++ {
		client := clients[0]
		if len(clients) > 1 {
			client = clients[i]
		}
		workers.Go(func() error {
			r.work(ctx, callCtx, client, budget, &st)
			return nil
		})
	}
	_ = workers.Wait()
	close(done)
	_ = aux.Wait()

	res := Result{
		Issued:      st.issued.Load(),
		Fatal:       st.fatal.Load(),
		FatalStatus: st.fatalStatus,
		Duration:    r.opt.Now().Sub(start),
		Status:      StatusCompleted,
	}
	switch {
	case res.Fatal > 0:
		res.Status = StatusAborted
	case ctx.Err() != nil:
		res.Status = StatusInterrupted
	}

	r.log.Info("run finished",
		zap.String("status", string(res.Status)),
		zap.Int64("issued", res.Issued),
		zap.Duration("elapsed", res.Duration),
	)
	if res.Status == StatusAborted {
		r.log.Error("run aborted by fatal outcome", zap.String("fatal_status", res.FatalStatus))
	}
	return res, nil
}

func (r *Runner) work(ctx, callCtx context.Context, client Client, budget WorkBudget, st *runState) {
	for budget.HasMoreWork() {
		if err := r.limiter.Acquire(ctx); err != nil {
			return
		}
		// A sibling may have hit a fatal outcome while this worker was paced.
		if budget.Stopped() || ctx.Err() != nil {
			return
		}

		o := r.opt.Adapter.SendRequest(callCtx, client)
		r.opt.Recorder.Record(o)
		st.issued.Add(1)

		if o.Fatal {
			st.fatal.Add(1)
			st.abort(o.Status)
			budget.Exhaust()
			return
		}
	}
}

func (r *Runner) newBudget(start time.Time) WorkBudget {
	if r.opt.Duration > 0 {
		b := NewDeadlineBudget(start.Add(r.opt.Duration))
		b.now = r.opt.Now
		return b
	}
	return NewCountBudget(r.opt.TotalRequests)
}

func (r *Runner) buildClients(ctx context.Context) ([]Client, error) {
	n := 1
	if scopeOf(r.opt.Adapter) == PerWorker {
		n = r.opt.Concurrency
	}
	clients := make([]Client, 0, n)
	for i := 0; i < n; i++ {
		c, err := r.opt.Adapter.BuildClient(ctx)
		if err != nil {
			r.closeClients(clients)
			return nil, &SetupError{Stage: StageBuildClient, Err: err}
		}
		clients = append(clients, c)
	}
	r.log.Debug("clients built", zap.Int("count", n))
	return clients, nil
}

func (r *Runner) closeClients(clients []Client) {
	for _, c := range clients {
		closer, ok := c.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && !errors.Is(err, io.EOF) {
			r.log.Warn("closing client", zap.Error(err))
		}
	}
}

func (r *Runner) runPatternController(done <-chan struct{}, budget WorkBudget) {
	start := r.opt.Now()
	if initial, ok := r.plan.rateAt(0); ok {
		r.limiter.SetRate(patternRate(initial))
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rps, ok := r.plan.rateAt(r.opt.Now().Sub(start))
			if !ok {
				r.log.Debug("load pattern finished", zap.Float64("peak_rate", r.plan.peakRate()))
				budget.Exhaust()
				return
			}
			r.limiter.SetRate(patternRate(rps))
		}
	}
}

// patternRate keeps a pattern phase at or near zero from meaning unlimited.
func patternRate(rps float64) float64 {
	if rps < 1 {
		return 1
	}
	return rps
}
