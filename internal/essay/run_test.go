package essay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRun_AdvancesForwardOnly(t *testing.T) {
	r := NewRun("/essay")
	if r.Stage() != StageRaw {
		t.Fatalf("expected %s, got %s", StageRaw, r.Stage())
	}
	if err := r.Advance(StageParsed); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := r.Advance(StageTagged); err == nil {
		t.Fatal("expected error when skipping stages")
	}
	if err := r.Advance(StageRaw); err == nil {
		t.Fatal("expected error when moving backwards")
	}
	if r.Stage() != StageParsed {
		t.Fatalf("stage changed after rejected transition: %s", r.Stage())
	}
}

func TestRun_FailIsTerminal(t *testing.T) {
	r := NewRun("/essay")
	r.Fail(errors.New("boom"))
	if r.Stage() != StageFailed {
		t.Fatalf("expected failed, got %s", r.Stage())
	}
	if err := r.Advance(StageParsed); err == nil {
		t.Fatal("expected error advancing a failed run")
	}
	if got := r.Snapshot().Error; got != "boom" {
		t.Fatalf("expected error boom, got %q", got)
	}
}

func TestRun_SnapshotJSON(t *testing.T) {
	r := NewRun("/essay")
	r.Note("geocode %s: %v", "wd:Q1", "timeout")
	r.SetRecords(3)

	b, err := json.Marshal(r.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["run_id"] != r.ID || got["stage"] != string(StageRaw) || got["records"] != float64(3) {
		t.Fatalf("unexpected snapshot: %v", got)
	}
	notes, _ := got["notes"].([]any)
	if len(notes) != 1 || notes[0] != "geocode wd:Q1: timeout" {
		t.Fatalf("unexpected notes: %v", got["notes"])
	}
	if _, ok := got["error"]; ok {
		t.Fatal("error should be omitted when empty")
	}
}

func TestRunStore_Cleanup(t *testing.T) {
	s := NewRunStore(time.Minute)
	fresh := NewRun("/a")
	stale := NewRun("/b")
	stale.UpdatedAt = time.Now().Add(-2 * time.Minute)
	s.Put(fresh)
	s.Put(stale)

	s.Cleanup()

	if s.Len() != 1 {
		t.Fatalf("expected 1 run, got %d", s.Len())
	}
	if s.Get(fresh.ID) == nil {
		t.Fatal("fresh run was removed")
	}
	if s.Get(stale.ID) != nil {
		t.Fatal("stale run was kept")
	}
}
