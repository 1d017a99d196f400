package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/baton/internal/ports/secondary"
)

// SignalRepository implements secondary.SignalRepository with SQLite.
// Signals are immutable - every received signal is recorded once.
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository creates a new SQLite signal repository.
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Insert persists a received signal.
func (r *SignalRepository) Insert(ctx context.Context, sig *secondary.SignalRecord) error {
	accepted := 0
	if sig.Accepted {
		accepted = 1
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO completion_signals (run_id, phase_id, status, reason, signaled_at, accepted)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sig.RunID, sig.PhaseID, sig.Status, nullString(sig.Reason), sig.SignaledAt, accepted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get signal ID: %w", err)
	}
	sig.ID = id

	return nil
}

// ListByRun retrieves all signals recorded for a run, oldest first.
func (r *SignalRepository) ListByRun(ctx context.Context, runID string) ([]*secondary.SignalRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, phase_id, status, reason, signaled_at, accepted
		 FROM completion_signals WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []*secondary.SignalRecord
	for rows.Next() {
		var (
			reason     sql.NullString
			signaledAt time.Time
			accepted   int
		)

		record := &secondary.SignalRecord{}
		err := rows.Scan(&record.ID, &record.RunID, &record.PhaseID, &record.Status, &reason, &signaledAt, &accepted)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}

		record.Reason = reason.String
		record.SignaledAt = signaledAt.Format(time.RFC3339)
		record.Accepted = accepted != 0

		signals = append(signals, record)
	}

	return signals, nil
}

// Ensure SignalRepository implements the interface
var _ secondary.SignalRepository = (*SignalRepository)(nil)
