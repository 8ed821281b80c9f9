package pipeline

import (
	"sync"
	"time"
)

// Stats accumulates per-cycle timing. One writer (the cycle loop), any
// number of snapshot readers.
type Stats struct {
	mu sync.Mutex

	frames  int64
	dropped int64
	elapsed time.Duration
	maxTime time.Duration
}

// StatsSnapshot is a point-in-time copy of the engine's cycle statistics.
type StatsSnapshot struct {
	Frames        int64   `json:"frames"`
	Dropped       int64   `json:"dropped"`
	AvgCycleMs    float64 `json:"avg_cycle_ms"`
	MaxCycleMs    float64 `json:"max_cycle_ms"`
	EffectiveRate float64 `json:"effective_rate_hz"`
}

func (s *Stats) observe(elapsed time.Duration, dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	if dropped {
		s.dropped++
	}
	s.elapsed += elapsed
	if elapsed > s.maxTime {
		s.maxTime = elapsed
	}
}

// Snapshot returns the current counters. EffectiveRate is the throughput
// implied by the mean cycle time.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Frames:     s.frames,
		Dropped:    s.dropped,
		MaxCycleMs: float64(s.maxTime) / float64(time.Millisecond),
	}
	if s.frames > 0 {
		avg := s.elapsed / time.Duration(s.frames)
		snap.AvgCycleMs = float64(avg) / float64(time.Millisecond)
		if avg > 0 {
			snap.EffectiveRate = float64(time.Second) / float64(avg)
		}
	}
	return snap
}
