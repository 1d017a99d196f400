package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/baton/internal/ports/secondary"
)

// PhaseExecutionRepository implements secondary.PhaseExecutionRepository
// with SQLite. Attempt rows are append-only.
type PhaseExecutionRepository struct {
	db *sql.DB
}

// NewPhaseExecutionRepository creates a new SQLite phase execution repository.
func NewPhaseExecutionRepository(db *sql.DB) *PhaseExecutionRepository {
	return &PhaseExecutionRepository{db: db}
}

// Insert persists a new attempt row and fills in its generated ID.
func (r *PhaseExecutionRepository) Insert(ctx context.Context, exec *secondary.PhaseExecutionRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO phase_executions
		 (run_id, phase_id, attempt, status, started_at, ended_at, failure_reason, session_id, total_cost_usd, input_tokens, output_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.RunID, exec.PhaseID, exec.Attempt, exec.Status,
		nullString(exec.StartedAt), nullString(exec.EndedAt),
		nullString(exec.FailureReason), nullString(exec.SessionID),
		exec.TotalCostUSD, exec.InputTokens, exec.OutputTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to insert phase execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get phase execution ID: %w", err)
	}
	exec.ID = id

	return nil
}

// Update updates an existing attempt row by its generated ID.
func (r *PhaseExecutionRepository) Update(ctx context.Context, exec *secondary.PhaseExecutionRecord) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE phase_executions
		 SET status = ?, started_at = ?, ended_at = ?, failure_reason = ?, session_id = ?,
		     total_cost_usd = ?, input_tokens = ?, output_tokens = ?
		 WHERE id = ?`,
		exec.Status,
		nullString(exec.StartedAt), nullString(exec.EndedAt),
		nullString(exec.FailureReason), nullString(exec.SessionID),
		exec.TotalCostUSD, exec.InputTokens, exec.OutputTokens,
		exec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update phase execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("phase execution %d not found", exec.ID)
	}

	return nil
}

// ListByRun retrieves every attempt row for a run, ordered by phase then attempt.
func (r *PhaseExecutionRepository) ListByRun(ctx context.Context, runID string) ([]*secondary.PhaseExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, phase_id, attempt, status, started_at, ended_at, failure_reason, session_id,
		        total_cost_usd, input_tokens, output_tokens
		 FROM phase_executions WHERE run_id = ?
		 ORDER BY phase_id, attempt`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list phase executions: %w", err)
	}
	defer rows.Close()

	return scanPhaseExecutions(rows)
}

// LatestPerPhase retrieves the highest-attempt row for each phase of a run.
func (r *PhaseExecutionRepository) LatestPerPhase(ctx context.Context, runID string) ([]*secondary.PhaseExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pe.id, pe.run_id, pe.phase_id, pe.attempt, pe.status, pe.started_at, pe.ended_at,
		        pe.failure_reason, pe.session_id, pe.total_cost_usd, pe.input_tokens, pe.output_tokens
		 FROM phase_executions pe
		 JOIN (
		     SELECT run_id, phase_id, MAX(attempt) AS attempt
		     FROM phase_executions WHERE run_id = ?
		     GROUP BY run_id, phase_id
		 ) latest
		 ON pe.run_id = latest.run_id AND pe.phase_id = latest.phase_id AND pe.attempt = latest.attempt
		 ORDER BY pe.phase_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest phase executions: %w", err)
	}
	defer rows.Close()

	return scanPhaseExecutions(rows)
}

func scanPhaseExecutions(rows *sql.Rows) ([]*secondary.PhaseExecutionRecord, error) {
	var execs []*secondary.PhaseExecutionRecord
	for rows.Next() {
		var (
			startedAt     sql.NullTime
			endedAt       sql.NullTime
			failureReason sql.NullString
			sessionID     sql.NullString
			cost          sql.NullFloat64
			inputTokens   sql.NullInt64
			outputTokens  sql.NullInt64
		)

		record := &secondary.PhaseExecutionRecord{}
		err := rows.Scan(
			&record.ID, &record.RunID, &record.PhaseID, &record.Attempt, &record.Status,
			&startedAt, &endedAt, &failureReason, &sessionID,
			&cost, &inputTokens, &outputTokens,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phase execution: %w", err)
		}

		if startedAt.Valid {
			record.StartedAt = startedAt.Time.Format(time.RFC3339)
		}
		if endedAt.Valid {
			record.EndedAt = endedAt.Time.Format(time.RFC3339)
		}
		record.FailureReason = failureReason.String
		record.SessionID = sessionID.String
		record.TotalCostUSD = cost.Float64
		record.InputTokens = inputTokens.Int64
		record.OutputTokens = outputTokens.Int64

		execs = append(execs, record)
	}

	return execs, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Ensure PhaseExecutionRepository implements the interface
var _ secondary.PhaseExecutionRepository = (*PhaseExecutionRepository)(nil)
