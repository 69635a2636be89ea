package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregator routes outcomes into a combined CounterSet and, for named
// operations, into a per-operation CounterSet created on first use. Each
// per-operation set measures its rates from its own creation time.
//
// Record holds the read side of epoch for one call and Snapshot holds the
// write side, so a snapshot always observes whole records while concurrent
// recorders only contend on the per-set lock they touch.
type Aggregator struct {
	epoch sync.RWMutex
	now   func() time.Time

	start    time.Time
	combined *CounterSet

	opsMu sync.RWMutex
	ops   map[string]*CounterSet
}

// AggregateSnapshot is a point-in-time copy of every CounterSet.
type AggregateSnapshot struct {
	Taken       time.Time
	Combined    CounterSnapshot
	ByOperation map[string]CounterSnapshot
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator starts a measurement window at the current time.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	a.combined = NewCounterSet(a.start)
	a.ops = make(map[string]*CounterSet)
	return a
}

// Record stores one outcome. It never fails; empty statuses and zero
// durations are stored as given.
func (a *Aggregator) Record(o Outcome) {
	a.epoch.RLock()
	defer a.epoch.RUnlock()

	a.combined.Record(o)
	if o.Operation != "" {
		a.operation(o.Operation).Record(o)
	}
}

func (a *Aggregator) operation(name string) *CounterSet {
	a.opsMu.RLock()
	set, ok := a.ops[name]
	a.opsMu.RUnlock()
	if ok {
		return set
	}

	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	if set, ok = a.ops[name]; ok {
		return set
	}
	set = NewCounterSet(a.now())
	a.ops[name] = set
	return set
}

// Snapshot copies the combined and per-operation state at record granularity.
func (a *Aggregator) Snapshot() AggregateSnapshot {
	a.epoch.Lock()
	defer a.epoch.Unlock()

	snap := AggregateSnapshot{
		Taken:       a.now(),
		Combined:    a.combined.Snapshot(),
		ByOperation: make(map[string]CounterSnapshot, len(a.ops)),
	}
	for name, set := range a.ops {
		snap.ByOperation[name] = set.Snapshot()
	}
	return snap
}

// Totals reports combined request and success counts without blocking
// recorders.
func (a *Aggregator) Totals() (requests, successes uint64) {
	a.epoch.RLock()
	defer a.epoch.RUnlock()
	return a.combined.Totals()
}

// Start returns the beginning of the current measurement window.
func (a *Aggregator) Start() time.Time {
	a.epoch.RLock()
	defer a.epoch.RUnlock()
	return a.start
}

// Reset discards everything recorded so far and starts a new window.
func (a *Aggregator) Reset() {
	a.epoch.Lock()
	defer a.epoch.Unlock()

	a.start = a.now()
	a.combined = NewCounterSet(a.start)
	a.opsMu.Lock()
	a.ops = make(map[string]*CounterSet)
	a.opsMu.Unlock()
}

// Operations returns the names seen so far in sorted order.
func (s AggregateSnapshot) Operations() []string {
	names := make([]string, 0, len(s.ByOperation))
	for name := range s.ByOperation {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
