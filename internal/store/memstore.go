package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and for runs without a database.
type MemStore struct {
	mu     sync.Mutex
	runs   map[string]*Run
	order  []string
	trials map[string][]TrialRecord // run id -> trials in insertion order
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:   make(map[string]*Run),
		trials: make(map[string][]TrialRecord),
	}
}

func (s *MemStore) CreateRun(run *Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	cp := *run
	cp.Scenarios = append([]string(nil), run.Scenarios...)
	s.runs[run.ID] = &cp
	s.order = append(s.order, run.ID)
	return nil
}

func (s *MemStore) FinishRun(id, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	r.Status = status
	r.FinishedAt = at
	return nil
}

func (s *MemStore) GetRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) ListRuns() ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		cp := *s.runs[s.order[i]]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *MemStore) SaveTrials(trials []TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trials {
		if _, ok := s.runs[t.RunID]; !ok {
			return fmt.Errorf("insert trial %s/%d: run %s not found", t.Scenario, t.TrialID, t.RunID)
		}
		for _, prev := range s.trials[t.RunID] {
			if prev.Scenario == t.Scenario && prev.TrialID == t.TrialID {
				return fmt.Errorf("insert trial %s/%d: duplicate", t.Scenario, t.TrialID)
			}
		}
	}
	for _, t := range trials {
		s.trials[t.RunID] = append(s.trials[t.RunID], t)
	}
	return nil
}

func (s *MemStore) ListTrials(runID, scenario string) ([]TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.trials[runID]
	pos := make(map[string]int)
	var out []TrialRecord
	for _, t := range all {
		if _, ok := pos[t.Scenario]; !ok {
			pos[t.Scenario] = len(pos)
		}
		if scenario == "" || t.Scenario == scenario {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if pos[out[i].Scenario] != pos[out[j].Scenario] {
			return pos[out[i].Scenario] < pos[out[j].Scenario]
		}
		return out[i].TrialID < out[j].TrialID
	})
	return out, nil
}

func (s *MemStore) Close() error { return nil }
