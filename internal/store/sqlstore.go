package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersionV1

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. data) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; trials from concurrent batches serialise here.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		return s.freshInstall()
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("schema_version table is empty")
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch v {
	case currentSchemaVersion:
		return nil
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

func (s *SqlStore) freshInstall() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

func (s *SqlStore) CreateRun(run *Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	scen, err := json.Marshal(run.Scenarios)
	if err != nil {
		return fmt.Errorf("encode scenarios: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs(id, samples, workers, model_file, results_path, scenarios, status, started_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Samples, run.Workers, run.ModelFile, run.ResultsPath, string(scen), run.Status,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SqlStore) FinishRun(id, status string, at time.Time) error {
	res, err := s.db.Exec("UPDATE runs SET status = ?, finished_at = ? WHERE id = ?", status, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = `id, samples, workers, model_file, results_path, scenarios, status, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var model, results, started, finished sql.NullString
	var scen string
	if err := row.Scan(&r.ID, &r.Samples, &r.Workers, &model, &results, &scen, &r.Status, &started, &finished); err != nil {
		return nil, err
	}
	r.ModelFile = nullStr(model)
	r.ResultsPath = nullStr(results)
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	if err := json.Unmarshal([]byte(scen), &r.Scenarios); err != nil {
		return nil, fmt.Errorf("decode scenarios of run %s: %w", r.ID, err)
	}
	return &r, nil
}

// GetRun returns the run by id, or nil if it does not exist.
func (s *SqlStore) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run, newest first.
func (s *SqlStore) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query("SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SqlStore) SaveTrials(trials []TrialRecord) error {
	if len(trials) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin trials tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(
		`INSERT INTO trials(run_id, scenario, trial_id, seed, status, evacuation_time, error, worker, duration_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare trial insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trials {
		var evac sql.NullFloat64
		if t.EvacuationTime != nil {
			evac = sql.NullFloat64{Float64: *t.EvacuationTime, Valid: true}
		}
		if _, err := stmt.Exec(t.RunID, t.Scenario, t.TrialID, t.Seed, t.Status, evac, t.Error,
			t.Worker, t.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("insert trial %s/%d: %w", t.Scenario, t.TrialID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trials: %w", err)
	}
	return nil
}

func (s *SqlStore) ListTrials(runID, scenario string) ([]TrialRecord, error) {
	// Insertion order of the first trial of each scenario keeps suite order.
	q := `SELECT t.run_id, t.scenario, t.trial_id, t.seed, t.status, t.evacuation_time, t.error, t.worker, t.duration_ms
	      FROM trials t
	      JOIN (SELECT scenario, MIN(id) AS first FROM trials WHERE run_id = ? GROUP BY scenario) o
	        ON o.scenario = t.scenario
	      WHERE t.run_id = ?`
	args := []any{runID, runID}
	if scenario != "" {
		q += " AND t.scenario = ?"
		args = append(args, scenario)
	}
	q += " ORDER BY o.first, t.trial_id"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()
	var out []TrialRecord
	for rows.Next() {
		var t TrialRecord
		var seed, msg sql.NullString
		var evac sql.NullFloat64
		var ms int64
		if err := rows.Scan(&t.RunID, &t.Scenario, &t.TrialID, &seed, &t.Status, &evac, &msg, &t.Worker, &ms); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		t.Seed = nullStr(seed)
		t.Error = nullStr(msg)
		t.Duration = time.Duration(ms) * time.Millisecond
		if evac.Valid {
			v := evac.Float64
			t.EvacuationTime = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
