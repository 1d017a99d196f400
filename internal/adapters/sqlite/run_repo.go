// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/baton/internal/ports/secondary"
)

// RunRepository implements secondary.RunRepository with SQLite.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new SQLite run repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create persists a new run.
func (r *RunRepository) Create(ctx context.Context, run *secondary.RunRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, plan_path, status) VALUES (?, ?, ?)`,
		run.ID, run.PlanPath, run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*secondary.RunRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, plan_path, status, created_at, completed_at
		 FROM runs WHERE id = ?`,
		id,
	)

	record, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return record, nil
}

// Update updates an existing run.
func (r *RunRepository) Update(ctx context.Context, run *secondary.RunRecord) error {
	var completedAt sql.NullString
	if run.CompletedAt != "" {
		completedAt = sql.NullString{String: run.CompletedAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ? WHERE id = ?`,
		run.Status, completedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	return nil
}

// List retrieves runs matching the given filters, newest first.
func (r *RunRepository) List(ctx context.Context, filters secondary.RunFilters) ([]*secondary.RunRecord, error) {
	query := `SELECT id, plan_path, status, created_at, completed_at FROM runs`
	var args []interface{}

	if filters.Status != "" {
		query += " WHERE status = ?"
		args = append(args, filters.Status)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*secondary.RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, record)
	}

	return runs, nil
}

// GetLatest returns the most recently created run, or nil when none exist.
func (r *RunRepository) GetLatest(ctx context.Context) (*secondary.RunRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, plan_path, status, created_at, completed_at
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT 1`,
	)

	record, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return record, nil
}

// GetNextID returns the next available run ID.
func (r *RunRepository) GetNextID(ctx context.Context) (string, error) {
	var maxID int
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(CAST(SUBSTR(id, 5) AS INTEGER)), 0) FROM runs",
	).Scan(&maxID)
	if err != nil {
		return "", fmt.Errorf("failed to get next run ID: %w", err)
	}

	return fmt.Sprintf("RUN-%03d", maxID+1), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*secondary.RunRecord, error) {
	var (
		createdAt   time.Time
		completedAt sql.NullTime
	)

	record := &secondary.RunRecord{}
	err := row.Scan(&record.ID, &record.PlanPath, &record.Status, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	record.CreatedAt = createdAt.Format(time.RFC3339)
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time.Format(time.RFC3339)
	}

	return record, nil
}

// Ensure RunRepository implements the interface
var _ secondary.RunRepository = (*RunRepository)(nil)
