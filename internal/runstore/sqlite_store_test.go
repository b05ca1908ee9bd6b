package runstore

import (
	"path/filepath"
	"testing"

	"github.com/beztri/engine/internal/densify"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openStore(t)

	run, err := s.BeginRun("garden")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("run ID is empty")
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil || got.Scene != "garden" {
		t.Fatalf("GetRun = %+v, want scene garden", got)
	}
	if got.FinishedAt != nil {
		t.Fatal("fresh run already finished")
	}

	if err := s.FinishRun(run.ID); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err = s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if got.FinishedAt == nil {
		t.Fatal("FinishRun did not stamp the end time")
	}
}

func TestGetMissingRun(t *testing.T) {
	s := openStore(t)
	got, err := s.GetRun("no-such-run")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Fatalf("GetRun = %+v for a missing run, want nil", got)
	}
}

func TestRecordAndListEvents(t *testing.T) {
	s := openStore(t)
	run, err := s.BeginRun("garden")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	opts := densify.DefaultOptions()
	reports := []densify.Report{
		{Split: 2, Added: 8, Pruned: 3, Coarsened: 1},
		{Split: 0, Added: 0, Pruned: 5, Coarsened: 0},
	}
	for i, rep := range reports {
		if err := s.RecordEvent(run.ID, 100*(i+1), rep, opts, 1000+i); err != nil {
			t.Fatalf("RecordEvent %d: %v", i, err)
		}
	}

	events, err := s.Events(run.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Iteration != 100 || events[1].Iteration != 200 {
		t.Fatalf("events out of iteration order: %d, %d", events[0].Iteration, events[1].Iteration)
	}
	if events[0].Report != reports[0] {
		t.Fatalf("event report = %+v, want %+v", events[0].Report, reports[0])
	}
	if events[0].Thresholds.GradThreshold != opts.GradThreshold {
		t.Fatalf("thresholds did not round-trip: %+v", events[0].Thresholds)
	}
	if events[1].Population != 1001 {
		t.Fatalf("population = %d, want 1001", events[1].Population)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	for _, scene := range []string{"a", "b"} {
		if _, err := s.BeginRun(scene); err != nil {
			t.Fatalf("BeginRun(%s): %v", scene, err)
		}
	}
	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}
