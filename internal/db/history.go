package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
	"github.com/jandubois/healthagent/internal/runner"
)

// DefaultHistoryLimit bounds RecentRuns when no limit is given.
const DefaultHistoryLimit = 50

// Run is one stored check run.
type Run struct {
	ID             string        `json:"id"`
	Check          string        `json:"check"`
	Status         probe.Status  `json:"status"`
	Message        string        `json:"message"`
	Value          *float64      `json:"value,omitempty"`
	Unit           string        `json:"unit,omitempty"`
	ExitCode       *int          `json:"exit_code,omitempty"`
	ExecutedAt     time.Time     `json:"executed_at"`
	DurationMs     int64         `json:"duration_ms"`
	AlertAttempted bool          `json:"alert_attempted"`
	AlertDelivered bool          `json:"alert_delivered"`
	Result         *probe.Result `json:"result"`
}

// History records check runs. It implements runner.Recorder.
type History struct {
	db *DB
}

// NewHistory creates a History backed by d.
func NewHistory(d *DB) *History {
	return &History{db: d}
}

// RecordRun stores a completed run.
func (h *History) RecordRun(ctx context.Context, rec *runner.RunRecord) error {
	res := rec.Result
	executedAt := res.Timestamp
	if executedAt.IsZero() {
		executedAt = rec.StartedAt
	}

	_, err := h.db.db.ExecContext(ctx, `
		INSERT INTO check_runs (
			id, check_name, status, message, value, unit, exit_code,
			executed_at, duration_ms, alert_attempted, alert_delivered, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Check, string(res.Status), res.Message, nullFloat(res.Value), res.Unit, nullInt(res.ExitCode),
		formatTime(executedAt), rec.Duration.Milliseconds(), rec.AlertAttempted, rec.AlertDelivered, ResultJSON{res},
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// RecentRuns returns the latest runs of check, newest first.
func (h *History) RecentRuns(ctx context.Context, check string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := h.db.db.QueryContext(ctx, `
		SELECT id, check_name, status, message, value, unit, exit_code,
		       executed_at, duration_ms, alert_attempted, alert_delivered, payload
		FROM check_runs
		WHERE check_name = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`, check, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run        Run
			status     string
			value      sql.NullFloat64
			exitCode   sql.NullInt64
			executedAt NullTime
			payload    ResultJSON
		)
		err := rows.Scan(&run.ID, &run.Check, &status, &run.Message, &value, &run.Unit, &exitCode,
			&executedAt, &run.DurationMs, &run.AlertAttempted, &run.AlertDelivered, &payload)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = probe.Status(status)
		if value.Valid {
			v := value.Float64
			run.Value = &v
		}
		if exitCode.Valid {
			c := int(exitCode.Int64)
			run.ExitCode = &c
		}
		run.ExecutedAt = executedAt.Time
		run.Result = payload.Result
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes runs executed before cutoff and returns how many were
// removed.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.db.ExecContext(ctx, `DELETE FROM check_runs WHERE executed_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
