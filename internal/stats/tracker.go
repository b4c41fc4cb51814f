package stats

import (
	"sort"
	"sync"
	"time"
)

// Service names recorded by the transform.
const (
	Knowledge = "knowledge"
	Geocode   = "geocode"
	Manifest  = "manifest"
	Source    = "source"
)

type sample struct {
	at     time.Time
	millis int64
	failed bool
}

// Snapshot aggregates the samples of one service inside the window.
type Snapshot struct {
	Calls  int     `json:"calls"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
}

// Tracker keeps a rolling window of outbound call latencies per service.
// A nil *Tracker is valid and records nothing.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	samples map[string][]sample
	now     func() time.Time
}

func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Hour
	}
	return &Tracker{
		window:  window,
		samples: make(map[string][]sample),
		now:     time.Now,
	}
}

// Observe records one call to service that started at start.
func (t *Tracker) Observe(service string, start time.Time, err error) {
	if t == nil {
		return
	}
	ms := t.now().Sub(start).Milliseconds()
	if ms < 0 {
		ms = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.samples[service] = append(t.prune(service, now), sample{at: now, millis: ms, failed: err != nil})
}

// Snapshot returns per-service aggregates.
func (t *Tracker) Snapshot() map[string]Snapshot {
	out := map[string]Snapshot{}
	if t == nil {
		return out
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for service := range t.samples {
		kept := t.prune(service, now)
		t.samples[service] = kept
		if len(kept) == 0 {
			continue
		}
		out[service] = summarize(kept)
	}
	return out
}

func (t *Tracker) prune(service string, now time.Time) []sample {
	cutoff := now.Add(-t.window)
	list := t.samples[service]
	kept := list[:0]
	for _, s := range list {
		if !s.at.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

func summarize(samples []sample) Snapshot {
	values := make([]int64, 0, len(samples))
	var sum int64
	snap := Snapshot{Calls: len(samples)}
	for _, s := range samples {
		values = append(values, s.millis)
		sum += s.millis
		if s.failed {
			snap.Errors++
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	return snap
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
