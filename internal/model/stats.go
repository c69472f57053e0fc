package model

import (
	"slices"
	"sync"
	"time"
)

// Outcome classifies a finished model call.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransport Outcome = "transport_error"
	OutcomeMalformed Outcome = "malformed_response"
)

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsMalformed(err):
		return OutcomeMalformed
	default:
		return OutcomeTransport
	}
}

type sample struct {
	at         time.Time
	durationMs int64
	outcome    Outcome
}

// StatsSnapshot aggregates model calls inside the window.
type StatsSnapshot struct {
	Count     int             `json:"count"`
	Outcomes  map[Outcome]int `json:"outcomes"`
	MinMs     int64           `json:"min_ms"`
	MaxMs     int64           `json:"max_ms"`
	AvgMs     float64         `json:"avg_ms"`
	P50Ms     float64         `json:"p50_ms"`
	P95Ms     float64         `json:"p95_ms"`
	P99Ms     float64         `json:"p99_ms"`
	WindowSec int64           `json:"window_sec"`
}

// LLMStats keeps model call latencies for a rolling window.
type LLMStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{
		samples: make([]sample, 0, 256),
		window:  window,
	}
}

// Record adds a successful call.
func (s *LLMStats) Record(durationMs int64) {
	s.RecordOutcome(durationMs, OutcomeOK)
}

func (s *LLMStats) RecordOutcome(durationMs int64, outcome Outcome) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)
	s.samples = append(s.samples, sample{at: now, durationMs: max(durationMs, 0), outcome: outcome})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)

	snap := StatsSnapshot{
		Outcomes:  map[Outcome]int{},
		WindowSec: int64(s.window / time.Second),
	}
	if len(s.samples) == 0 {
		return snap
	}

	values := make([]int64, len(s.samples))
	var sum int64
	for i, sm := range s.samples {
		values[i] = sm.durationMs
		sum += sm.durationMs
		snap.Outcomes[sm.outcome]++
	}
	slices.Sort(values)

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

// expire drops samples older than the window. Samples are kept in time order.
func (s *LLMStats) expire(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[lo+1])-float64(sorted[lo]))*frac
}
