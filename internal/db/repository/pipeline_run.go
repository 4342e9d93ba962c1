package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"duck-etl/internal/domain"
)

// Compile-time check.
var _ domain.PipelineRunRepository = (*PipelineRunRepo)(nil)

const pipelineRunColumns = `id, pipeline_name, trigger_type, status, files_seen, files_processed,
	files_skipped, error_message, started_at, finished_at`

// PipelineRunRepo implements PipelineRunRepository using SQLite.
type PipelineRunRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPipelineRunRepo creates a new PipelineRunRepo.
func NewPipelineRunRepo(db *sql.DB) *PipelineRunRepo {
	return &PipelineRunRepo{db: db, now: time.Now}
}

// CreateRun inserts a new pipeline run. A missing ID or start time is filled in.
func (r *PipelineRunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	created := *run
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	if created.StartedAt.IsZero() {
		created.StartedAt = r.now()
	}
	created.StartedAt = created.StartedAt.UTC()

	_, err := r.db.ExecContext(ctx, `INSERT INTO pipeline_runs
		(id, pipeline_name, trigger_type, status, files_seen, files_processed, files_skipped, error_message, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.PipelineName, created.TriggerType, created.Status,
		created.FilesSeen, created.FilesProcessed, created.FilesSkipped,
		nullStrFromPtr(created.ErrorMessage), formatTime(created.StartedAt))
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetRun(ctx, created.ID)
}

// FinishRun sets the final status, counters and error message of a run.
func (r *PipelineRunRepo) FinishRun(ctx context.Context, id, status string, counts domain.RunCounts, errorMsg *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pipeline_runs
		SET status = ?, files_seen = ?, files_processed = ?, files_skipped = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		status, counts.FilesSeen, counts.FilesProcessed, counts.FilesSkipped,
		nullStrFromPtr(errorMsg), formatTime(r.now()), id)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("run %q not found", id)
	}
	return nil
}

// GetRun returns a pipeline run by its ID.
func (r *PipelineRunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pipelineRunColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanPipelineRun(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return run, nil
}

// ListRuns returns the runs matching filter, newest first.
func (r *PipelineRunRepo) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
	var where []string
	var args []any
	if filter.PipelineName != "" {
		where = append(where, "pipeline_name = ?")
		args = append(args, filter.PipelineName)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + pipelineRunColumns + ` FROM pipeline_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// === Private mappers ===

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPipelineRun(row rowScanner) (*domain.PipelineRun, error) {
	var (
		run        domain.PipelineRun
		errMsg     sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &run.PipelineName, &run.TriggerType, &run.Status,
		&run.FilesSeen, &run.FilesProcessed, &run.FilesSkipped,
		&errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.ErrorMessage = ptrFromNullStr(errMsg)

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}
