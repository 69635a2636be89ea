package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

// fakeAdapter simulates a remote call with fixed latency.
type fakeAdapter struct {
	latency   time.Duration
	calls     atomic.Int64
	builds    atomic.Int64
	inits     atomic.Int64
	buildErr  error
	initErr   error
	fatalAt   int64 // if >0, the fatalAt-th call returns a fatal outcome
	inFlight  atomic.Int64
	maxFlight atomic.Int64
	perWorker bool
}

type fakeClient struct {
	id     int64
	closed *atomic.Int64
}

func (c *fakeClient) Close() error {
	c.closed.Add(1)
	return nil
}

func (f *fakeAdapter) BuildClient(context.Context) (runner.Client, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &fakeClient{id: f.builds.Add(1), closed: &atomic.Int64{}}, nil
}

func (f *fakeAdapter) InitializeWorkload(context.Context, runner.Client) error {
	f.inits.Add(1)
	return f.initErr
}

func (f *fakeAdapter) ClientScope() runner.ClientScope {
	if f.perWorker {
		return runner.PerWorker
	}
	return runner.SharedClient
}

func (f *fakeAdapter) SendRequest(ctx context.Context, _ runner.Client) metrics.Outcome {
	n := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	for {
		prev := f.maxFlight.Load()
		if cur <= prev || f.maxFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	time.Sleep(f.latency)
	if f.fatalAt > 0 && n == f.fatalAt {
		return metrics.Failed("PERMISSION_DENIED", f.latency).AsFatal()
	}
	return metrics.Succeeded("OK", 64, f.latency).WithOperation("call")
}

// TestRunnerRespectsTotalRequests ensures total limit stops execution.
func TestRunnerRespectsTotalRequests(t *testing.T) {
	adapter := &fakeAdapter{latency: time.Millisecond}
	agg := metrics.NewAggregator()
	r := runner.New(runner.Options{
		Concurrency:   4,
		TotalRequests: 25,
		Adapter:       adapter,
		Recorder:      agg,
	})
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Issued != 25 || res.Status != runner.StatusCompleted {
		t.Fatalf("result = %+v, want 25 completed", res)
	}
	if adapter.calls.Load() != 25 {
		t.Fatalf("expected adapter called 25 times, got %d", adapter.calls.Load())
	}
	snap := agg.Snapshot()
	if snap.Combined.TotalRequests != 25 || snap.Combined.TotalBytes != 25*64 {
		t.Fatalf("recorded %d requests / %d bytes", snap.Combined.TotalRequests, snap.Combined.TotalBytes)
	}
	if snap.ByOperation["call"].TotalRequests != 25 {
		t.Fatalf("per-operation count = %d", snap.ByOperation["call"].TotalRequests)
	}
}

// TestRunnerHonorsDuration ensures duration cap stops even if total not reached.
func TestRunnerHonorsDuration(t *testing.T) {
	adapter := &fakeAdapter{latency: 5 * time.Millisecond}
	r := runner.New(runner.Options{
		Concurrency: 10,
		Duration:    50 * time.Millisecond,
		Adapter:     adapter,
		Recorder:    metrics.NewAggregator(),
	})
	start := time.Now()
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("run took %s, expected about 50ms", elapsed)
	}
	if res.Issued == 0 {
		t.Fatalf("expected some calls within the duration")
	}
	if res.Status != runner.StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestRunnerZeroBudget(t *testing.T) {
	adapter := &fakeAdapter{}
	agg := metrics.NewAggregator()
	r := runner.New(runner.Options{
		Concurrency: 3,
		Adapter:     adapter,
		Recorder:    agg,
	})
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Issued != 0 || adapter.calls.Load() != 0 {
		t.Fatalf("expected zero calls, got %d", adapter.calls.Load())
	}
	rr := metrics.BuildRunReport("id", "", agg.Snapshot())
	if rr.Combined.SuccessRate != nil {
		t.Fatalf("empty run should have no success rate")
	}
}

func TestRunnerRateLimitAcrossWorkers(t *testing.T) {
	adapter := &fakeAdapter{}
	r := runner.New(runner.Options{
		Concurrency:   8,
		TotalRequests: 21,
		RatePerSecond: 100,
		Adapter:       adapter,
		Recorder:      metrics.NewAggregator(),
	})
	start := time.Now()
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 21 calls at 100/s with burst 1 need 20 intervals of 10ms no matter
	// how many workers share the limiter.
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Fatalf("rate limit not shared across workers: %s", elapsed)
	}
}

func TestRunnerConcurrency(t *testing.T) {
	adapter := &fakeAdapter{latency: 10 * time.Millisecond}
	r := runner.New(runner.Options{
		Concurrency:   5,
		TotalRequests: 50,
		Adapter:       adapter,
		Recorder:      metrics.NewAggregator(),
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := adapter.maxFlight.Load(); got > 5 || got < 2 {
		t.Fatalf("max in-flight = %d, want between 2 and 5", got)
	}
}

func TestRunnerFatalOutcomeAborts(t *testing.T) {
	adapter := &fakeAdapter{latency: time.Millisecond, fatalAt: 5}
	agg := metrics.NewAggregator()
	r := runner.New(runner.Options{
		Concurrency:   4,
		TotalRequests: 10_000,
		Adapter:       adapter,
		Recorder:      agg,
	})
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != runner.StatusAborted {
		t.Fatalf("status = %s, want aborted", res.Status)
	}
	if res.FatalStatus != "PERMISSION_DENIED" || res.Fatal != 1 {
		t.Fatalf("fatal = %d %q", res.Fatal, res.FatalStatus)
	}
	// Siblings stop at their next budget check.
	if res.Issued < 5 || res.Issued > 50 {
		t.Fatalf("issued %d calls after a fatal outcome", res.Issued)
	}
	if got := agg.Snapshot().Combined.TotalRequests; got != uint64(res.Issued) {
		t.Fatalf("recorded %d, issued %d", got, res.Issued)
	}
}

func TestRunnerBuildClientFailure(t *testing.T) {
	boom := errors.New("dial failed")
	adapter := &fakeAdapter{buildErr: boom}
	agg := metrics.NewAggregator()
	r := runner.New(runner.Options{TotalRequests: 5, Adapter: adapter, Recorder: agg})

	_, err := r.Run(context.Background())
	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != runner.StageBuildClient {
		t.Fatalf("err = %v, want build_client SetupError", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("SetupError should unwrap to the cause")
	}
	if adapter.calls.Load() != 0 || agg.Snapshot().Combined.TotalRequests != 0 {
		t.Fatalf("no call may run after a setup failure")
	}
}

func TestRunnerInitializeWorkloadFailure(t *testing.T) {
	adapter := &fakeAdapter{initErr: errors.New("no session")}
	agg := metrics.NewAggregator()
	r := runner.New(runner.Options{TotalRequests: 5, Adapter: adapter, Recorder: agg})

	_, err := r.Run(context.Background())
	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != runner.StageInitializeWorkload {
		t.Fatalf("err = %v, want initialize_workload SetupError", err)
	}
	if adapter.calls.Load() != 0 || agg.Snapshot().Combined.TotalRequests != 0 {
		t.Fatalf("no call may run after a setup failure")
	}
}

func TestRunnerClientScope(t *testing.T) {
	shared := &fakeAdapter{}
	r := runner.New(runner.Options{Concurrency: 4, TotalRequests: 8, Adapter: shared, Recorder: metrics.NewAggregator()})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if shared.builds.Load() != 1 || shared.inits.Load() != 1 {
		t.Fatalf("shared: builds=%d inits=%d, want 1/1", shared.builds.Load(), shared.inits.Load())
	}

	perWorker := &fakeAdapter{perWorker: true}
	r = runner.New(runner.Options{Concurrency: 4, TotalRequests: 8, Adapter: perWorker, Recorder: metrics.NewAggregator()})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if perWorker.builds.Load() != 4 || perWorker.inits.Load() != 1 {
		t.Fatalf("per-worker: builds=%d inits=%d, want 4/1", perWorker.builds.Load(), perWorker.inits.Load())
	}
}

func TestRunnerInterrupted(t *testing.T) {
	adapter := &fakeAdapter{latency: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	r := runner.New(runner.Options{
		Concurrency: 2,
		Duration:    time.Hour,
		Adapter:     adapter,
		Recorder:    metrics.NewAggregator(),
	})

	var (
		res runner.Result
		err error
		wg  sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err = r.Run(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != runner.StatusInterrupted {
		t.Fatalf("status = %s, want interrupted", res.Status)
	}
}

func TestRunnerRequiresAdapterAndRecorder(t *testing.T) {
	if _, err := runner.New(runner.Options{Recorder: metrics.NewAggregator()}).Run(context.Background()); !errors.Is(err, runner.ErrNoAdapter) {
		t.Fatalf("err = %v, want ErrNoAdapter", err)
	}
	if _, err := runner.New(runner.Options{Adapter: &fakeAdapter{}}).Run(context.Background()); !errors.Is(err, runner.ErrNoRecorder) {
		t.Fatalf("err = %v, want ErrNoRecorder", err)
	}
}

func TestRunnerLoadPatternEndsRun(t *testing.T) {
	adapter := &fakeAdapter{}
	r := runner.New(runner.Options{
		Concurrency: 2,
		Adapter:     adapter,
		Recorder:    metrics.NewAggregator(),
		LoadPatterns: []runner.LoadPattern{
			{Type: runner.LoadPatternTypeSpike, RPS: 200, Duration: 150 * time.Millisecond},
		},
	})
	start := time.Now()
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("pattern run took %s", elapsed)
	}
	// 150ms at 200 rps is about 30 calls.
	if res.Issued < 10 || res.Issued > 60 {
		t.Fatalf("issued %d calls, want about 30", res.Issued)
	}
}

func TestRunnerExposesBudget(t *testing.T) {
	r := runner.New(runner.Options{
		Concurrency:   2,
		TotalRequests: 5,
		Adapter:       &fakeAdapter{},
		Recorder:      metrics.NewAggregator(),
	})
	if r.Budget() != nil {
		t.Fatal("Budget() before Run should be nil")
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, ok := r.Budget().(*runner.CountBudget)
	if !ok {
		t.Fatalf("Budget() = %T, want *runner.CountBudget", r.Budget())
	}
	if b.Limit() != 5 || b.Remaining() != 0 {
		t.Errorf("limit/remaining = %d/%d, want 5/0", b.Limit(), b.Remaining())
	}

	start := time.Now()
	r = runner.New(runner.Options{
		Concurrency: 1,
		Duration:    20 * time.Millisecond,
		Adapter:     &fakeAdapter{latency: time.Millisecond},
		Recorder:    metrics.NewAggregator(),
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	d, ok := r.Budget().(*runner.DeadlineBudget)
	if !ok {
		t.Fatalf("Budget() = %T, want *runner.DeadlineBudget", r.Budget())
	}
	if d.Deadline().Before(start.Add(20 * time.Millisecond)) {
		t.Errorf("deadline %v is earlier than start+duration", d.Deadline())
	}
}
