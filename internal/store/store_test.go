package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var (
	_ Store = (*SqlStore)(nil)
	_ Store = (*MemStore)(nil)
)

func f64(v float64) *float64 { return &v }

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(filepath.Join(t.TempDir(), "data", "evacsim.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemStore())
	})
}

func TestStore_RunLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		run := &Run{
			ID:          "run-1",
			Samples:     5,
			Workers:     2,
			ModelFile:   "v2.11.0.nlogo",
			ResultsPath: "data/experiment_results.csv",
			Scenarios:   []string{"no-support", "adaptive-support"},
			StartedAt:   started,
		}
		if err := s.CreateRun(run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		got, err := s.GetRun("run-1")
		if err != nil || got == nil {
			t.Fatalf("GetRun: got %+v err %v", got, err)
		}
		if got.Status != RunRunning || !got.FinishedAt.IsZero() {
			t.Errorf("new run = %+v, want running and unfinished", got)
		}
		if diff := cmp.Diff(run.Scenarios, got.Scenarios); diff != "" {
			t.Errorf("scenarios mismatch:\n%s", diff)
		}
		if !got.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
		}

		finished := started.Add(90 * time.Second)
		if err := s.FinishRun("run-1", RunComplete, finished); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
		got, _ = s.GetRun("run-1")
		if got.Status != RunComplete || !got.FinishedAt.Equal(finished) {
			t.Errorf("finished run = %+v", got)
		}

		if err := s.FinishRun("nope", RunFailed, finished); err == nil {
			t.Error("FinishRun on unknown run should fail")
		}
		missing, err := s.GetRun("nope")
		if err != nil || missing != nil {
			t.Errorf("GetRun(nope) = %+v, %v; want nil, nil", missing, err)
		}
	})
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		for i, id := range []string{"a", "b", "c"} {
			if err := s.CreateRun(&Run{ID: id, Samples: 1, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
				t.Fatalf("CreateRun(%s): %v", id, err)
			}
		}
		runs, err := s.ListRuns()
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		var ids []string
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
			t.Errorf("run order mismatch:\n%s", diff)
		}
	})
}

func TestStore_TrialsKeepScenarioOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		if err := s.CreateRun(&Run{ID: "r", Samples: 3}); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		// Arrival order within a batch is not id order.
		batch1 := []TrialRecord{
			{RunID: "r", Scenario: "staff-support", TrialID: 2, Seed: "7", Status: "evacuated", EvacuationTime: f64(135), Duration: 40 * time.Millisecond},
			{RunID: "r", Scenario: "staff-support", TrialID: 0, Seed: "5", Status: "failed", Error: "link exploded"},
			{RunID: "r", Scenario: "staff-support", TrialID: 1, Seed: "6", Status: "not-evacuated"},
		}
		batch2 := []TrialRecord{
			{RunID: "r", Scenario: "adaptive-support", TrialID: 0, Seed: "9", Status: "evacuated", EvacuationTime: f64(0), Worker: 1},
		}
		if err := s.SaveTrials(batch1); err != nil {
			t.Fatalf("SaveTrials: %v", err)
		}
		if err := s.SaveTrials(batch2); err != nil {
			t.Fatalf("SaveTrials: %v", err)
		}
		if err := s.SaveTrials(nil); err != nil {
			t.Fatalf("SaveTrials(nil): %v", err)
		}

		all, err := s.ListTrials("r", "")
		if err != nil {
			t.Fatalf("ListTrials: %v", err)
		}
		want := []TrialRecord{batch1[1], batch1[2], batch1[0], batch2[0]}
		if diff := cmp.Diff(want, all); diff != "" {
			t.Errorf("trials mismatch (-want +got):\n%s", diff)
		}

		only, err := s.ListTrials("r", "adaptive-support")
		if err != nil {
			t.Fatalf("ListTrials(scenario): %v", err)
		}
		if len(only) != 1 || only[0].EvacuationTime == nil || *only[0].EvacuationTime != 0 {
			t.Errorf("adaptive-support trials = %+v, want one evacuated at 0", only)
		}

		if err := s.SaveTrials(batch2); err == nil {
			t.Error("saving a duplicate trial should fail")
		}
	})
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evacsim.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.CreateRun(&Run{ID: "keep", Samples: 100}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	r, err := s.GetRun("keep")
	if err != nil || r == nil || r.Samples != 100 {
		t.Fatalf("GetRun after reopen: %+v err %v", r, err)
	}
}

func TestOpen_RejectsUnknownSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE schema_version (version INTEGER NOT NULL); INSERT INTO schema_version VALUES (99)"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = db.Close()

	if s, err := Open(path); err == nil {
		_ = s.Close()
		t.Fatal("expected error for schema version 99")
	}
}
