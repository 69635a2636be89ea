package runner

import (
	"math"
	"time"
)

// LoadPatternType names a load pattern shape.
type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

// LoadPattern describes one phase of a time-varying target rate.
type LoadPattern struct {
	Name     string
	Type     LoadPatternType
	FromRPS  float64
	ToRPS    float64
	Duration time.Duration
	Steps    []LoadStep
	RPS      float64
}

// LoadStep holds a constant rate for Duration.
type LoadStep struct {
	RPS      float64
	Duration time.Duration
}

type patternPlan struct {
	segments []patternSegment
	duration time.Duration
	maxRate  float64
}

// PlanDuration returns the combined length of patterns.
func PlanDuration(patterns []LoadPattern) time.Duration {
	return compilePatternPlan(patterns).totalDuration()
}

type patternSegment struct {
	start    time.Duration
	duration time.Duration
	fromRate float64
	toRate   float64
}

func compilePatternPlan(patterns []LoadPattern) *patternPlan {
	if len(patterns) == 0 {
		return nil
	}

	plan := &patternPlan{}
	var offset time.Duration
	for _, pattern := range patterns {
		switch pattern.Type {
		case LoadPatternTypeRamp:
			if pattern.Duration <= 0 {
				continue
			}
			seg := patternSegment{
				start:    offset,
				duration: pattern.Duration,
				fromRate: pattern.FromRPS,
				toRate:   pattern.ToRPS,
			}
			plan.appendSegment(seg)
			offset += pattern.Duration
		case LoadPatternTypeStep:
			for _, step := range pattern.Steps {
				if step.Duration <= 0 {
					continue
				}
				seg := patternSegment{
					start:    offset,
					duration: step.Duration,
					fromRate: step.RPS,
					toRate:   step.RPS,
				}
				plan.appendSegment(seg)
				offset += step.Duration
			}
		case LoadPatternTypeSpike:
			if pattern.Duration <= 0 {
				continue
			}
			seg := patternSegment{
				start:    offset,
				duration: pattern.Duration,
				fromRate: pattern.RPS,
				toRate:   pattern.RPS,
			}
			plan.appendSegment(seg)
			offset += pattern.Duration
		}
	}

	if len(plan.segments) == 0 {
		return nil
	}
	plan.duration = offset
	return plan
}

func (p *patternPlan) appendSegment(seg patternSegment) {
	p.segments = append(p.segments, seg)
	p.maxRate = math.Max(p.maxRate, math.Max(seg.fromRate, seg.toRate))
}

func (p *patternPlan) rateAt(elapsed time.Duration) (float64, bool) {
	if p == nil || len(p.segments) == 0 {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for _, seg := range p.segments {
		if elapsed < seg.start {
			continue
		}
		end := seg.start + seg.duration
		if elapsed >= end {
			continue
		}
		if seg.duration <= 0 {
			continue
		}
		if seg.fromRate == seg.toRate {
			return seg.fromRate, true
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
		return seg.fromRate + (seg.toRate-seg.fromRate)*progress, true
	}
	return 0, false
}

func (p *patternPlan) totalDuration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}

func (p *patternPlan) peakRate() float64 {
	if p == nil {
		return 0
	}
	return p.maxRate
}
