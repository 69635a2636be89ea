// Package runner provides the load generation engine for perfgauge.
//
// The runner package drives a fixed pool of workers against a protocol
// [Adapter] with support for:
//   - Configurable concurrency levels
//   - Aggregate rate limiting shared by every worker
//   - Count-based or duration-based stop conditions ([WorkBudget])
//   - Multiple arrival models (uniform, Poisson)
//   - Dynamic load patterns (ramp, step, spike)
//
// # Basic Usage
//
//	agg := metrics.NewAggregator()
//	r := runner.New(runner.Options{
//		Concurrency:   10,
//		TotalRequests: 1000,
//		RatePerSecond: 100,
//		Adapter:       myAdapter,
//		Recorder:      agg,
//	})
//	res, err := r.Run(ctx)
//
// # Worker Loop
//
// Every worker repeats: claim a unit from the budget, wait for the shared
// limiter, call [Adapter.SendRequest], hand the outcome to the [Recorder].
// An outcome marked fatal exhausts the budget for every worker and the run
// ends with [StatusAborted] once in-flight calls drain.
//
// # Setup
//
// [Adapter.BuildClient] runs once (or once per worker for adapters that
// implement [ClientScoper]). Adapters implementing [WorkloadInitializer] get
// one InitializeWorkload call before any worker starts. A failure in either
// step is returned as a [SetupError] and nothing is recorded.
//
// # Middleware
//
// Enhance adapters with decorators:
//   - [WithLogging]: Log failed outcomes
//   - [WithRetry]: Retry non-fatal failures with backoff
package runner
