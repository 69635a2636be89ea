package runner

import (
	"sync/atomic"
	"time"
)

// WorkBudget decides whether another call may be started. Every worker asks
// before every call; implementations are safe for concurrent use.
type WorkBudget interface {
	// HasMoreWork reports whether the caller may start one more call.
	HasMoreWork() bool
	// Exhaust makes every later HasMoreWork return false.
	Exhaust()
	// Stopped reports whether Exhaust was called.
	Stopped() bool
}

// CountBudget allows a fixed number of calls.
type CountBudget struct {
	limit     int64
	remaining atomic.Int64
	stopped   atomic.Bool
}

// NewCountBudget allows exactly n calls; n <= 0 allows none.
func NewCountBudget(n int64) *CountBudget {
	if n < 0 {
		n = 0
	}
	b := &CountBudget{limit: n}
	b.remaining.Store(n)
	return b
}

// HasMoreWork claims one unit of the budget.
func (b *CountBudget) HasMoreWork() bool {
	for {
		if b.stopped.Load() {
			return false
		}
		v := b.remaining.Load()
		if v <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

func (b *CountBudget) Exhaust() {
	b.stopped.Store(true)
	b.remaining.Store(0)
}

func (b *CountBudget) Stopped() bool {
	return b.stopped.Load()
}

// Remaining returns the number of calls not yet claimed.
func (b *CountBudget) Remaining() int64 {
	return b.remaining.Load()
}

// Limit returns the configured call count.
func (b *CountBudget) Limit() int64 {
	return b.limit
}

// DeadlineBudget allows calls to start until a wall-clock deadline.
type DeadlineBudget struct {
	deadline time.Time
	now      func() time.Time
	stopped  atomic.Bool
}

// NewDeadlineBudget allows calls to start while time.Now() is before deadline.
func NewDeadlineBudget(deadline time.Time) *DeadlineBudget {
	return &DeadlineBudget{deadline: deadline, now: time.Now}
}

// HasMoreWork is a pure read; it never mutates the budget.
func (b *DeadlineBudget) HasMoreWork() bool {
	if b.stopped.Load() {
		return false
	}
	return b.now().Before(b.deadline)
}

func (b *DeadlineBudget) Exhaust() {
	b.stopped.Store(true)
}

func (b *DeadlineBudget) Stopped() bool {
	return b.stopped.Load()
}

// Deadline returns the configured deadline.
func (b *DeadlineBudget) Deadline() time.Time {
	return b.deadline
}
