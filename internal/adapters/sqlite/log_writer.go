// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/baton/internal/ports/secondary"
)

// OperationLogWriter implements secondary.OperationLogWriter with SQLite.
// Entries are immutable - the audit trail is only ever appended to.
type OperationLogWriter struct {
	db *sql.DB
}

// NewOperationLogWriter creates a new SQLite operation log writer.
func NewOperationLogWriter(db *sql.DB) *OperationLogWriter {
	return &OperationLogWriter{db: db}
}

// Log records an event for a run.
func (w *OperationLogWriter) Log(ctx context.Context, runID, phaseID, event, detail string) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO operation_log (run_id, phase_id, event, detail) VALUES (?, ?, ?, ?)`,
		runID, nullString(phaseID), event, nullString(detail),
	)
	if err != nil {
		return fmt.Errorf("failed to write operation log: %w", err)
	}

	return nil
}

// ListByRun retrieves the recorded events for a run, oldest first.
func (w *OperationLogWriter) ListByRun(ctx context.Context, runID string) ([]*secondary.OperationLogRecord, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT id, run_id, phase_id, event, detail, logged_at
		 FROM operation_log WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation log: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.OperationLogRecord
	for rows.Next() {
		var (
			phaseID  sql.NullString
			detail   sql.NullString
			loggedAt time.Time
		)

		record := &secondary.OperationLogRecord{}
		err := rows.Scan(&record.ID, &record.RunID, &phaseID, &record.Event, &detail, &loggedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation log entry: %w", err)
		}

		record.PhaseID = phaseID.String
		record.Detail = detail.String
		record.LoggedAt = loggedAt.Format(time.RFC3339)

		entries = append(entries, record)
	}

	return entries, nil
}

// Ensure OperationLogWriter implements the interface
var _ secondary.OperationLogWriter = (*OperationLogWriter)(nil)
