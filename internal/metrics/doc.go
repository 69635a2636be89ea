// Package metrics turns the stream of per-call outcomes produced by protocol
// adapters into combined and per-operation statistics.
//
// # Recording
//
// Adapters return an [Outcome] for every call and the runner hands it to
// [Aggregator.Record]:
//
//	agg := metrics.NewAggregator()
//	agg.Record(metrics.Succeeded("200 OK", 512, 3*time.Millisecond).WithOperation("read"))
//
// Every outcome lands in the combined [CounterSet]. Outcomes that name an
// operation also land in that operation's set, created on first use.
//
// # Snapshots and reports
//
// [Aggregator.Snapshot] returns an [AggregateSnapshot] that reflects a whole
// number of Record calls. [BuildRunReport] derives the user-facing
// [RunReport] from it:
//
//	snap := agg.Snapshot()
//	rr := metrics.BuildRunReport(metrics.NewRunID(), "nightly", snap)
//	p99, _ := rr.Combined.Latency(metrics.StatP99)
//
// Latency rows are computed over the success and error histograms merged
// together, in microseconds. Truncated means (tm95, tm99, tm99.9) carry the
// number of samples they left out.
//
// # Thread Safety
//
// Record may be called from any number of goroutines. Each [CounterSet] has its
// own lock, so recorders of different operations only meet on the combined
// set. Snapshot briefly excludes all recorders.
package metrics
