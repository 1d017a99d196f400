// Package sqlite_test contains integration tests for SQLite repositories.
//
// This file is the single point where the database schema is loaded for
// tests. All test setup uses db.GetSchemaSQL() so tests run against the
// authoritative schema, preventing drift between test and production.
package sqlite_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/baton/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedRun inserts a test run and returns its ID.
func seedRun(t *testing.T, db *sql.DB, id, planPath string) string {
	t.Helper()
	if id == "" {
		id = "RUN-001"
	}
	if planPath == "" {
		planPath = "plans/master-plan.md"
	}
	_, err := db.Exec("INSERT INTO runs (id, plan_path, status) VALUES (?, ?, 'running')", id, planPath)
	if err != nil {
		t.Fatalf("failed to seed run: %v", err)
	}
	return id
}
