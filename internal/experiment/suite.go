package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"evacsim/internal/logging"
	"evacsim/internal/results"
	"evacsim/internal/scenario"
	"evacsim/internal/store"

	"github.com/google/uuid"
)

// DefaultSamples is the number of trials per scenario.
const DefaultSamples = 100

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithSamples sets the trial count per scenario.
func WithSamples(n int) SuiteOption {
	return func(s *Suite) { s.samples = n }
}

// WithResultsPath sets where the CSV is written. An empty path skips writing.
func WithResultsPath(path string) SuiteOption {
	return func(s *Suite) { s.resultsPath = path }
}

// WithStore records runs and trials in st.
func WithStore(st store.Store) SuiteOption {
	return func(s *Suite) { s.store = st }
}

// WithSuiteLogger sets the logger.
func WithSuiteLogger(l *slog.Logger) SuiteOption {
	return func(s *Suite) { s.logger = l }
}

// Suite runs every scenario through a BatchRunner and persists one combined
// results table.
type Suite struct {
	batch       *BatchRunner
	samples     int
	resultsPath string
	store       store.Store
	logger      *slog.Logger

	lastRunID string
}

// NewSuite returns a Suite writing to results.DefaultPath by default.
func NewSuite(batch *BatchRunner, opts ...SuiteOption) *Suite {
	s := &Suite{batch: batch, samples: DefaultSamples, resultsPath: results.DefaultPath}
	for _, o := range opts {
		o(s)
	}
	if s.samples < 1 {
		s.samples = DefaultSamples
	}
	if s.logger == nil {
		s.logger = logging.New("suite")
	}
	return s
}

// RunID returns the id of the most recent Run, recorded in the store.
func (s *Suite) RunID() string { return s.lastRunID }

// Run executes the scenarios in order, one column each, and writes the
// table once every scenario has finished. A rerun overwrites the file.
func (s *Suite) Run(ctx context.Context, scenarios []scenario.Scenario) (*results.Table, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios to run")
	}
	if err := scenario.Validate(scenarios); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	s.lastRunID = runID
	log := s.logger.With("run_id", runID)

	if s.store != nil {
		err := s.store.CreateRun(&store.Run{
			ID:          runID,
			Samples:     s.samples,
			Workers:     s.batch.Workers(),
			ModelFile:   s.batch.ModelFile(),
			ResultsPath: s.resultsPath,
			Scenarios:   scenario.Names(scenarios),
			StartedAt:   start,
		})
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	table, err := s.runAll(ctx, runID, scenarios, log)
	if err != nil {
		s.finish(runID, store.RunFailed, log)
		return nil, err
	}

	if s.resultsPath != "" {
		if err := results.WriteFile(s.resultsPath, table); err != nil {
			s.finish(runID, store.RunFailed, log)
			return nil, err
		}
		log.Info("results written", "path", s.resultsPath, "rows", table.Rows())
	}
	s.finish(runID, store.RunComplete, log)

	log.Info("simulation finished",
		"scenarios", len(scenarios),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return table, nil
}

func (s *Suite) runAll(ctx context.Context, runID string, scenarios []scenario.Scenario, log *slog.Logger) (*results.Table, error) {
	table := &results.Table{}
	for _, sc := range scenarios {
		log.Info("running scenario", "scenario", sc.Name, "samples", s.samples)
		trials, err := s.batch.RunTrials(ctx, sc.Name, s.samples, sc.Commands)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		if err := table.Add(sc.Name, Times(trials)); err != nil {
			return nil, err
		}
		if s.store != nil {
			if err := s.store.SaveTrials(TrialRecords(runID, trials)); err != nil {
				return nil, fmt.Errorf("record trials of %s: %w", sc.Name, err)
			}
		}
	}
	return table, nil
}

func (s *Suite) finish(runID, status string, log *slog.Logger) {
	if s.store == nil {
		return
	}
	if err := s.store.FinishRun(runID, status, time.Now()); err != nil {
		log.Warn("record run status", "status", status, "error", err)
	}
}

// TrialRecords converts trials to their stored form.
func TrialRecords(runID string, trials []Trial) []store.TrialRecord {
	out := make([]store.TrialRecord, 0, len(trials))
	for _, t := range trials {
		rec := store.TrialRecord{
			RunID:    runID,
			Scenario: t.Scenario,
			TrialID:  t.ID,
			Seed:     t.Seed,
			Status:   t.Outcome.Status.String(),
			Worker:   t.Worker,
			Duration: t.Duration,
		}
		if t.Outcome.Present() {
			v := t.Outcome.Time
			rec.EvacuationTime = &v
		}
		if t.Outcome.Err != nil {
			rec.Error = t.Outcome.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}
