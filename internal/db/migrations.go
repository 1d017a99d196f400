package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.DB) error
}

// Migrations is the list of all migrations in order
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_run_ledger",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_worker_usage_columns",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_accepted_flag_to_signals",
		Up:      migrationV3,
	},
}

// RunMigrations applies all pending migrations to conn.
func RunMigrations(conn *sql.DB) error {
	// Create schema_version table if it doesn't exist
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Get current schema version
	var currentVersion int
	err = conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Run pending migrations
	for _, migration := range Migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(conn); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		// Record migration
		_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// migrationV1 creates the initial run ledger tables. Early installs had
// no worker usage columns and no accepted flag; those arrive in v2 and v3.
func migrationV1(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			plan_path TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'cancelled')) DEFAULT 'running',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		);

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
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
			UNIQUE(run_id, phase_id, attempt)
		);

		CREATE TABLE IF NOT EXISTS completion_signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			phase_id TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('completed', 'blocked', 'failed')),
			reason TEXT,
			signaled_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);

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
	`)
	if err != nil {
		return fmt.Errorf("failed to create initial tables: %w", err)
	}
	return nil
}

// migrationV2 adds cost and token accounting reported by the worker result event.
func migrationV2(conn *sql.DB) error {
	stmts := []string{
		"ALTER TABLE phase_executions ADD COLUMN total_cost_usd REAL",
		"ALTER TABLE phase_executions ADD COLUMN input_tokens INTEGER",
		"ALTER TABLE phase_executions ADD COLUMN output_tokens INTEGER",
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to add usage column: %w", err)
		}
	}
	return nil
}

// migrationV3 records whether a signal was accepted by the engine or
// discarded as late or duplicate.
func migrationV3(conn *sql.DB) error {
	_, err := conn.Exec("ALTER TABLE completion_signals ADD COLUMN accepted INTEGER NOT NULL DEFAULT 0")
	if err != nil {
		return fmt.Errorf("failed to add accepted column: %w", err)
	}
	return nil
}
