package render

import "go.uber.org/atomic"

// Stats counts renderer activity. Safe for concurrent reads.
type Stats struct {
	chunks  atomic.Int64
	fills   atomic.Int64
	sets    atomic.Int64
	skipped atomic.Int64
}

type StatsSnapshot struct {
	Chunks  int64 `json:"chunks"`
	Fills   int64 `json:"fills"`
	Sets    int64 `json:"sets"`
	Skipped int64 `json:"skipped"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Chunks:  s.chunks.Load(),
		Fills:   s.fills.Load(),
		Sets:    s.sets.Load(),
		Skipped: s.skipped.Load(),
	}
}

// Sub returns s-o field by field.
func (s StatsSnapshot) Sub(o StatsSnapshot) StatsSnapshot {
	return StatsSnapshot{
		Chunks:  s.Chunks - o.Chunks,
		Fills:   s.Fills - o.Fills,
		Sets:    s.Sets - o.Sets,
		Skipped: s.Skipped - o.Skipped,
	}
}
