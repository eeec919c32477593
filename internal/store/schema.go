package store

// schemaVersionV1 is the run/trial schema.
const schemaVersionV1 = 1

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	samples      INTEGER NOT NULL,
	workers      INTEGER NOT NULL,
	model_file   TEXT,
	results_path TEXT,
	scenarios    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TEXT NOT NULL,
	finished_at  TEXT
);

CREATE TABLE IF NOT EXISTS trials (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	scenario        TEXT NOT NULL,
	trial_id        INTEGER NOT NULL,
	seed            TEXT,
	status          TEXT NOT NULL,
	evacuation_time REAL,
	error           TEXT,
	worker          INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	UNIQUE(run_id, scenario, trial_id)
);

CREATE INDEX IF NOT EXISTS idx_trials_run ON trials(run_id, scenario);
`
