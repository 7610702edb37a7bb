// Package stats tracks telemetry loop timing and persists windows of it.
package stats

import (
	"time"

	"GpsLogger/internal/model"
)

// Perf accumulates packet counts and inter-packet timing for one window.
type Perf struct {
	start   time.Time
	last    time.Time
	packets uint64
	dropped uint64
	skipped uint64
	deltas  uint64
	sum     time.Duration
	min     time.Duration
	max     time.Duration
}

// NewPerf starts a window at now.
func NewPerf(now time.Time) *Perf {
	p := &Perf{}
	p.Reset(now)
	return p
}

// Observe records one emitted packet.
func (p *Perf) Observe(now time.Time) {
	p.packets++
	if !p.last.IsZero() {
		d := now.Sub(p.last)
		if p.deltas == 0 || d < p.min {
			p.min = d
		}
		if d > p.max {
			p.max = d
		}
		p.sum += d
		p.deltas++
	}
	p.last = now
}

// Drop records one record that could not be persisted.
func (p *Perf) Drop() { p.dropped++ }

// Skip records n fixes the source skipped because the loop was behind.
func (p *Perf) Skip(n uint64) { p.skipped += n }

// Packets returns the packets seen in this window.
func (p *Perf) Packets() uint64 { return p.packets }

// Since returns how long the window has been open.
func (p *Perf) Since(now time.Time) time.Duration { return now.Sub(p.start) }

// Snapshot summarises the window ending at now.
func (p *Perf) Snapshot(now time.Time) model.PerfSnapshot {
	s := model.PerfSnapshot{
		Start:      p.start,
		End:        now,
		Packets:    p.packets,
		Dropped:    p.dropped,
		Skipped:    p.skipped,
		MinDeltaMs: p.min.Milliseconds(),
		MaxDeltaMs: p.max.Milliseconds(),
	}
	if p.deltas > 0 {
		s.AvgDeltaMs = float64(p.sum.Microseconds()) / float64(p.deltas) / 1000
	}
	return s
}

// Reset opens a new window at now.
func (p *Perf) Reset(now time.Time) {
	*p = Perf{start: now}
}
