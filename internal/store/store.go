// Package store persists experiment suite runs and the per-trial outcomes
// behind each results column, so a CSV can be traced back to failure reasons.
package store

import "time"

// DefaultDBPath is the default SQLite database location.
const DefaultDBPath = "data/evacsim.db"

// Run status values.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Run is one ExperimentSuite invocation.
type Run struct {
	ID          string
	Samples     int
	Workers     int
	ModelFile   string
	ResultsPath string
	Scenarios   []string
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
}

// TrialRecord is one trial outcome within a run. EvacuationTime is nil unless
// Status is "evacuated".
type TrialRecord struct {
	RunID          string
	Scenario       string
	TrialID        int
	Seed           string
	Status         string
	EvacuationTime *float64
	Error          string
	Worker         int
	Duration       time.Duration
}

// Store is the persistence interface for runs and trials.
type Store interface {
	CreateRun(run *Run) error
	FinishRun(id, status string, at time.Time) error
	GetRun(id string) (*Run, error)
	ListRuns() ([]*Run, error)

	// SaveTrials appends the trials of one batch in a single transaction.
	SaveTrials(trials []TrialRecord) error
	// ListTrials returns the trials of a run ordered by scenario position then
	// trial id. An empty scenario lists every scenario.
	ListTrials(runID, scenario string) ([]TrialRecord, error)

	Close() error
}
