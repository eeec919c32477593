package experiment

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"evacsim/internal/netlogo/netlogotest"
	"evacsim/internal/results"
	"evacsim/internal/scenario"
	"evacsim/internal/store"

	"github.com/google/go-cmp/cmp"
)

func TestSuite_EndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "experiment_results.csv")
	st := store.NewMemStore()
	pool := &netlogotest.Pool{Script: twoFailThreeSucceed}
	b := newBatch(pool, RunnerConfig{}, WithWorkers(1))
	s := NewSuite(b, WithSamples(5), WithResultsPath(path), WithStore(st), WithSuiteLogger(quietLogger()))

	scenarios := []scenario.Scenario{{Name: "adaptive-support", Commands: []string{
		scenario.EnablePassengerCommand, scenario.EnableStaffCommand,
	}}}
	table, err := s.Run(context.Background(), scenarios)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	col, _ := table.Column("adaptive-support")
	if diff := cmp.Diff([]float64{120, 135, 128}, col); diff != "" {
		t.Errorf("column mismatch:\n%s", diff)
	}

	persisted, err := results.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if persisted.Rows() != 3 {
		t.Errorf("persisted rows = %d, want 3", persisted.Rows())
	}

	run, err := st.GetRun(s.RunID())
	if err != nil || run == nil {
		t.Fatalf("GetRun: %+v %v", run, err)
	}
	if run.Status != store.RunComplete || run.Samples != 5 || run.ResultsPath != path {
		t.Errorf("run = %+v", run)
	}
	recs, err := st.ListTrials(s.RunID(), "")
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	var failed int
	for _, r := range recs {
		if r.Status == Failed.String() {
			failed++
			if r.Error == "" || r.EvacuationTime != nil {
				t.Errorf("failed record %+v should carry an error and no time", r)
			}
		}
	}
	if len(recs) != 5 || failed != 2 {
		t.Errorf("records = %d (failed %d), want 5 (failed 2)", len(recs), failed)
	}
}

func TestSuite_ColumnsFollowScenarioOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	pool := &netlogotest.Pool{Script: func(id int) netlogotest.Trial {
		return netlogotest.Trial{EvacuatedAt: 100 + id}
	}}
	b := newBatch(pool, RunnerConfig{}, WithWorkers(1))
	s := NewSuite(b, WithSamples(4), WithResultsPath(path), WithSuiteLogger(quietLogger()))

	scenarios := scenario.Defaults()
	table, err := s.Run(context.Background(), scenarios)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(scenario.Names(scenarios), table.Names()); diff != "" {
		t.Errorf("column order mismatch:\n%s", diff)
	}

	var cmds []string
	for _, l := range pool.Links() {
		cmds = append(cmds, l.Commands()...)
	}
	idx := func(c string) int {
		for i, got := range cmds {
			if got == c {
				return i
			}
		}
		return -1
	}
	if idx(scenario.EnablePassengerCommand) < 0 || idx(scenario.EnableStaffCommand) < 0 {
		t.Errorf("support commands not sent: %v", cmds)
	}

	persisted, err := results.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, name := range table.Names() {
		col, ok := persisted.Column(name)
		if !ok || len(col) != 4 {
			t.Errorf("persisted column %s = %v", name, col)
		}
	}
}

func TestBatchColumns_ShortColumnsPersistAsMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	pool := &netlogotest.Pool{Script: func(id int) netlogotest.Trial {
		return netlogotest.Trial{EvacuatedAt: 200 + id}
	}}
	failing := &netlogotest.Pool{Script: func(id int) netlogotest.Trial {
		if id%2 == 1 {
			return netlogotest.Trial{Err: errLinkRaised}
		}
		return netlogotest.Trial{EvacuatedAt: 300}
	}}

	table := &results.Table{}
	for _, p := range []struct {
		name string
		pool *netlogotest.Pool
	}{{"no-support", pool}, {"staff-support", failing}} {
		got, err := newBatch(p.pool, RunnerConfig{}, WithWorkers(1)).RunBatch(context.Background(), 4, nil)
		if err != nil {
			t.Fatalf("RunBatch: %v", err)
		}
		if err := table.Add(p.name, got); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := results.WriteFile(path, table); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := ",no-support,staff-support\n0,200,300\n1,201,300\n2,202,\n3,203,\n"
	if diff := cmp.Diff(want, string(raw)); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}

	back, err := results.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if staff, _ := back.Column("staff-support"); len(staff) != 2 || math.IsNaN(staff[1]) {
		t.Errorf("staff-support read back = %v, want two values", staff)
	}
}

func TestSuite_PoolFailureAbortsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	st := store.NewMemStore()
	pool := &netlogotest.Pool{Script: netlogotest.Evacuates(1), LoadErr: errors.New("model file not found")}
	s := NewSuite(newBatch(pool, RunnerConfig{}, WithWorkers(2)),
		WithSamples(3), WithResultsPath(path), WithStore(st), WithSuiteLogger(quietLogger()))

	if _, err := s.Run(context.Background(), scenario.Defaults()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("results file should not exist, stat err = %v", err)
	}
	run, _ := st.GetRun(s.RunID())
	if run == nil || run.Status != store.RunFailed {
		t.Errorf("run = %+v, want failed", run)
	}
}

func TestSuite_RejectsInvalidScenarios(t *testing.T) {
	s := NewSuite(newBatch(&netlogotest.Pool{Script: netlogotest.Evacuates(1)}, RunnerConfig{}),
		WithResultsPath(""), WithSuiteLogger(quietLogger()))
	if _, err := s.Run(context.Background(), nil); err == nil {
		t.Error("empty scenario list should fail")
	}
	dup := []scenario.Scenario{{Name: "a"}, {Name: "a"}}
	if _, err := s.Run(context.Background(), dup); err == nil {
		t.Error("duplicate scenario names should fail")
	}
}

func TestTrialRecords(t *testing.T) {
	trials := []Trial{
		{Scenario: "s", ID: 0, Seed: "1", Outcome: Outcome{Status: Evacuated, Time: 42}},
		{Scenario: "s", ID: 1, Seed: "2", Outcome: Outcome{Status: NotEvacuated}},
		{Scenario: "s", ID: 2, Outcome: Outcome{Status: Failed, Err: errLinkRaised}, Worker: 3},
	}
	recs := TrialRecords("run", trials)
	v := 42.0
	want := []store.TrialRecord{
		{RunID: "run", Scenario: "s", TrialID: 0, Seed: "1", Status: "evacuated", EvacuationTime: &v},
		{RunID: "run", Scenario: "s", TrialID: 1, Seed: "2", Status: "not-evacuated"},
		{RunID: "run", Scenario: "s", TrialID: 2, Status: "failed", Error: errLinkRaised.Error(), Worker: 3},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}
