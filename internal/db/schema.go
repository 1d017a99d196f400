package db

import "database/sql"

// SchemaSQL is the complete modern schema for fresh baton installs.
// This schema reflects the current state after all migrations.
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. Tests use
// this schema via GetSchemaSQL() so that repository code referencing a
// column that does not exist here fails immediately with "no such column".
//
// When adding new columns or tables:
//  1. Add a migration in internal/db/migrations.go
//  2. Update SchemaSQL here
const SchemaSQL = `
-- Runs (one row per orchestration run of a plan)
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	plan_path TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'cancelled')) DEFAULT 'running',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);

-- Phase executions (append-only, one row per attempt)
CREATE TABLE IF NOT EXISTS phase_executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	phase_id TEXT NOT NULL,
	attempt INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL CHECK(status IN ('pending', 'ready', 'running', 'awaiting_compliance', 'completed', 'blocked', 'failed')),
	started_at DATETIME,
	ended_at DATETIME,
	failure_reason TEXT,
	session_id TEXT,
	total_cost_usd REAL,
	input_tokens INTEGER,
	output_tokens INTEGER,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
	UNIQUE(run_id, phase_id, attempt)
);

-- Completion signals (every signal received, including late and duplicate ones)
CREATE TABLE IF NOT EXISTS completion_signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	phase_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('completed', 'blocked', 'failed')),
	reason TEXT,
	signaled_at DATETIME NOT NULL,
	accepted INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

-- Operation log (engine decisions, worker lifecycle, compliance outcomes)
CREATE TABLE IF NOT EXISTS operation_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	phase_id TEXT,
	event TEXT NOT NULL,
	detail TEXT,
	logged_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_phase_executions_run ON phase_executions(run_id);
CREATE INDEX IF NOT EXISTS idx_phase_executions_phase ON phase_executions(run_id, phase_id, attempt DESC);
CREATE INDEX IF NOT EXISTS idx_completion_signals_run ON completion_signals(run_id, phase_id);
CREATE INDEX IF NOT EXISTS idx_operation_log_run ON operation_log(run_id, logged_at);
`

// InitSchema creates the database schema on conn and applies any pending
// migrations.
func InitSchema(conn *sql.DB) error {
	var tableCount int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount == 0 {
		// Fresh install - create the modern schema directly, then mark all
		// migrations as applied so they never run against it.
		if _, err := conn.Exec(SchemaSQL); err != nil {
			return err
		}
		_, err = conn.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)
		`)
		if err != nil {
			return err
		}
		for _, m := range Migrations {
			if _, err := conn.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
				return err
			}
		}
		return nil
	}

	// schema_version table exists - run any pending migrations
	return RunMigrations(conn)
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
