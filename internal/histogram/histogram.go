// Package histogram implements a mergeable latency histogram with nearest-rank
// percentiles and truncated means over microsecond samples.
package histogram

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// MaxValue is the largest trackable latency in microseconds (one hour).
	MaxValue int64 = 3_600_000_000
	// SignificantFigures keeps bucket error under 0.1% and stores values
	// below 2048µs exactly.
	SignificantFigures = 3
)

// Histogram is a mergeable latency histogram over integer microseconds.
// It is not safe for concurrent use; callers hold their own lock.
type Histogram struct {
	h *hdrhistogram.Histogram
}

// Bucket is one populated histogram bucket.
type Bucket struct {
	Value int64
	Count int64
}

// TruncatedMean is the result of a trimmed-mean query.
type TruncatedMean struct {
	Value    int64
	Included int64
	Excluded int64
}

// New returns an empty histogram covering 0..MaxValue µs.
func New() *Histogram {
	return &Histogram{h: hdrhistogram.New(1, MaxValue, SignificantFigures)}
}

// Increment records one sample. Negative values count as 0 and values above
// MaxValue count as MaxValue.
func (h *Histogram) Increment(v int64) {
	if v < 0 {
		v = 0
	}
	if v > MaxValue {
		v = MaxValue
	}
	_ = h.h.RecordValue(v)
}

// IncrementDuration records d truncated to whole microseconds.
func (h *Histogram) IncrementDuration(d time.Duration) {
	h.Increment(d.Microseconds())
}

// Count returns the number of recorded samples.
func (h *Histogram) Count() int64 {
	if h == nil {
		return 0
	}
	return h.h.TotalCount()
}

// Merge adds every bucket count of other into h.
func (h *Histogram) Merge(other *Histogram) {
	if other == nil || other.h.TotalCount() == 0 {
		return
	}
	h.h.Merge(other.h)
}

// Clone returns an independent copy.
func (h *Histogram) Clone() *Histogram {
	c := New()
	c.Merge(h)
	return c
}

// Reset drops all samples.
func (h *Histogram) Reset() {
	h.h.Reset()
}

// Buckets returns the populated buckets in ascending value order.
func (h *Histogram) Buckets() []Bucket {
	if h == nil || h.h.TotalCount() == 0 {
		return nil
	}
	bars := h.h.Distribution()
	out := make([]Bucket, 0, len(bars))
	for _, b := range bars {
		if b.Count == 0 {
			continue
		}
		out = append(out, Bucket{Value: b.From, Count: b.Count})
	}
	return out
}

// Min returns the lowest recorded bucket value, or 0 when empty.
func (h *Histogram) Min() int64 {
	b := h.Buckets()
	if len(b) == 0 {
		return 0
	}
	return b[0].Value
}

// Max returns the highest recorded bucket value, or 0 when empty.
func (h *Histogram) Max() int64 {
	b := h.Buckets()
	if len(b) == 0 {
		return 0
	}
	return b[len(b)-1].Value
}

// Percentile returns the nearest-rank value at p, 0 <= p <= 100.
// Out-of-range p is clamped. An empty histogram yields 0.
func (h *Histogram) Percentile(p float64) int64 {
	return percentile(h.Buckets(), h.Count(), p)
}

func percentile(buckets []Bucket, total int64, p float64) int64 {
	if total == 0 || len(buckets) == 0 {
		return 0
	}
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	// Guard against float noise such as 99.9/100*1000 = 999.0000000000001.
	need := int64(math.Ceil(float64(total)*p/100 - 1e-9))
	if need > total {
		need = total
	}

	if p < 50 {
		if need < 1 {
			need = 1
		}
		var seen int64
		for _, b := range buckets {
			seen += b.Count
			if seen >= need {
				return b.Value
			}
		}
		return buckets[len(buckets)-1].Value
	}

	need = total - need
	if need < 1 {
		need = 1
	}
	var seen int64
	for i := len(buckets) - 1; i >= 0; i-- {
		seen += buckets[i].Count
		if seen >= need {
			return buckets[i].Value
		}
	}
	return buckets[0].Value
}

// Mean returns the arithmetic mean rounded up, or 0 when empty.
func (h *Histogram) Mean() int64 {
	return mean(h.Buckets(), h.Count())
}

func mean(buckets []Bucket, total int64) int64 {
	if total == 0 {
		return 0
	}
	var sum uint64
	for _, b := range buckets {
		sum += uint64(b.Value) * uint64(b.Count)
	}
	n := uint64(total)
	return int64((sum + n - 1) / n)
}

// StdDev returns the population standard deviation around Mean, rounded up.
func (h *Histogram) StdDev() int64 {
	buckets := h.Buckets()
	total := h.Count()
	if total == 0 {
		return 0
	}
	m := float64(mean(buckets, total))
	var acc float64
	for _, b := range buckets {
		d := float64(b.Value) - m
		acc += float64(b.Count) * d * d
	}
	return int64(math.Ceil(math.Sqrt(acc / float64(total))))
}

// TruncatedMean averages the samples between Percentile(threshold) and
// Percentile(100-threshold), both inclusive.
func (h *Histogram) TruncatedMean(threshold float64) TruncatedMean {
	buckets := h.Buckets()
	total := h.Count()
	if total == 0 {
		return TruncatedMean{}
	}
	lo := percentile(buckets, total, threshold)
	hi := percentile(buckets, total, 100-threshold)
	if lo > hi {
		lo, hi = hi, lo
	}

	var (
		sum uint64
		out TruncatedMean
	)
	for _, b := range buckets {
		if b.Value >= lo && b.Value <= hi {
			sum += uint64(b.Value) * uint64(b.Count)
			out.Included += b.Count
			continue
		}
		out.Excluded += b.Count
	}
	if out.Included > 0 {
		out.Value = int64(sum / uint64(out.Included))
	}
	return out
}
