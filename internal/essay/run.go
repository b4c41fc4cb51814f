package essay

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage is the position of a transform in the document pipeline.
type Stage string

const (
	StageRaw        Stage = "raw_markdown"
	StageParsed     Stage = "parsed_tree"
	StageExtracted  Stage = "extracted"
	StageEnriched   Stage = "enriched"
	StageTagged     Stage = "tagged"
	StageNormalized Stage = "normalized"
	StageManifested Stage = "manifested"
	StageSerialized Stage = "serialized"
	StageFailed     Stage = "failed"
)

var stageOrder = map[Stage]int{
	StageRaw:        0,
	StageParsed:     1,
	StageExtracted:  2,
	StageEnriched:   3,
	StageTagged:     4,
	StageNormalized: 5,
	StageManifested: 6,
	StageSerialized: 7,
}

// Run tracks the progress of one transform.
type Run struct {
	mu sync.Mutex

	ID        string
	Path      string
	stage     Stage
	notes     []string
	records   int
	err       string
	StartedAt time.Time
	UpdatedAt time.Time
}

func NewRun(path string) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Path:      path,
		stage:     StageRaw,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the run to the next stage. Stages only move forward.
func (r *Run) Advance(next Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := stageOrder[r.stage]
	if !ok {
		return fmt.Errorf("run %s: cannot advance from %s", r.ID, r.stage)
	}
	want, ok := stageOrder[next]
	if !ok || want != cur+1 {
		return fmt.Errorf("run %s: invalid transition %s -> %s", r.ID, r.stage, next)
	}
	r.stage = next
	r.UpdatedAt = time.Now()
	return nil
}

// Fail marks the run as failed.
func (r *Run) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = StageFailed
	r.err = err.Error()
	r.UpdatedAt = time.Now()
}

// Note records a degraded outcome that did not stop the transform.
func (r *Run) Note(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
	r.UpdatedAt = time.Now()
}

// SetRecords stores the number of markup records produced.
func (r *Run) SetRecords(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = n
}

// Stage returns the current stage.
func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// RunSnapshot is a JSON-safe copy of run state.
type RunSnapshot struct {
	ID         string    `json:"run_id"`
	Path       string    `json:"path"`
	Stage      Stage     `json:"stage"`
	Records    int       `json:"records"`
	Notes      []string  `json:"notes"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	DurationMs int64     `json:"duration_ms"`
}

func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	notes := append([]string{}, r.notes...)
	return RunSnapshot{
		ID:         r.ID,
		Path:       r.Path,
		Stage:      r.stage,
		Records:    r.records,
		Notes:      notes,
		Error:      r.err,
		StartedAt:  r.StartedAt,
		UpdatedAt:  r.UpdatedAt,
		DurationMs: r.UpdatedAt.Sub(r.StartedAt).Milliseconds(),
	}
}

// RunStore keeps recent runs in memory, dropping those idle past ttl.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(r *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Cleanup removes expired runs.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, r := range s.runs {
		r.mu.Lock()
		idle := now.Sub(r.UpdatedAt)
		r.mu.Unlock()
		if idle > s.ttl {
			delete(s.runs, id)
		}
	}
}
