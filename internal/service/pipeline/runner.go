package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"duck-etl/internal/domain"
)

// RunResult summarizes one run of a pipeline.
type RunResult struct {
	RunID string
	domain.RunCounts
	// Processed lists the files loaded by this run, in processing order.
	Processed []string
}

// Runner drives extract, diff, transform, validate, load and record for one
// pipeline at a time. A run is sequential; callers serialize runs of the same
// pipeline.
type Runner struct {
	blobs     domain.BlobStore
	ledger    domain.VersionLedger
	tables    domain.TableManager
	validator domain.SchemaValidator
	runs      domain.PipelineRunRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(
	blobs domain.BlobStore,
	ledger domain.VersionLedger,
	tables domain.TableManager,
	validator domain.SchemaValidator,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		blobs:     blobs,
		ledger:    ledger,
		tables:    tables,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// SetRunRepository enables run history.
func (r *Runner) SetRunRepository(runs domain.PipelineRunRepository) {
	r.runs = runs
}

// Run executes def once. Files whose ledger version is at least their current
// version are skipped. The first failure aborts the run; tables and ledger
// keep whatever the files before it committed.
func (r *Runner) Run(ctx context.Context, def Definition, trigger string) (RunResult, error) {
	if err := def.Validate(); err != nil {
		return RunResult{}, err
	}
	logger := r.logger.With("pipeline", def.Name)

	result := RunResult{}
	if r.runs != nil {
		run, err := r.runs.CreateRun(ctx, &domain.PipelineRun{
			ID:           domain.NewID(),
			PipelineName: def.Name,
			TriggerType:  trigger,
			Status:       domain.PipelineRunStatusRunning,
			StartedAt:    r.now().UTC(),
		})
		if err != nil {
			logger.Warn("failed to record run start", "error", err)
		} else {
			result.RunID = run.ID
			logger = logger.With("run_id", run.ID)
		}
	}

	start := r.now()
	err := r.run(ctx, def, &result, logger)
	r.finish(ctx, result, err, logger)
	if err != nil {
		logger.Error("pipeline run failed", "error", err, "files_processed", result.FilesProcessed)
		return result, err
	}
	logger.Info("pipeline run finished",
		"files_seen", result.FilesSeen,
		"files_processed", result.FilesProcessed,
		"files_skipped", result.FilesSkipped,
		"duration", r.now().Sub(start),
	)
	return result, nil
}

func (r *Runner) run(ctx context.Context, def Definition, result *RunResult, logger *slog.Logger) error {
	stage := NewStager(r.blobs, def.Name, logger)
	if err := def.Source.Extract(ctx, stage); err != nil {
		return &domain.ExtractionError{Pipeline: def.Name, Err: err}
	}

	for _, m := range def.Models {
		if err := r.tables.EnsureTable(ctx, m); err != nil {
			return err
		}
	}

	names, err := r.blobs.List(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("list bronze files: %w", err)
	}
	for _, name := range names {
		result.FilesSeen++
		processed, err := r.processFile(ctx, def, name, logger)
		if err != nil {
			return fmt.Errorf("file %s: %w", name, err)
		}
		if processed {
			result.FilesProcessed++
			result.Processed = append(result.Processed, name)
		} else {
			result.FilesSkipped++
		}
	}
	return nil
}

// processFile loads one bronze file unless the ledger already has its
// version. It reports whether the file was loaded.
func (r *Runner) processFile(ctx context.Context, def Definition, name string, logger *slog.Logger) (bool, error) {
	version, err := r.blobs.StatVersion(ctx, def.Name, name)
	if err != nil {
		return false, err
	}
	version = domain.NormalizeVersion(version)

	stored, found, err := r.ledger.Get(ctx, def.Name, name)
	if err != nil {
		return false, err
	}
	if found && !stored.Before(version) {
		logger.Debug("file up to date", "file_name", name, "version", version, "stored_version", stored)
		return false, nil
	}

	content, err := r.blobs.Download(ctx, def.Name, name)
	if err != nil {
		return false, err
	}
	frames, err := def.Source.Transform(ctx, name, content)
	if err != nil {
		return false, fmt.Errorf("transform: %w", err)
	}
	if len(frames) != len(def.Models) {
		return false, domain.ErrConfiguration("pipeline %q: transform returned %d frames for %d models",
			def.Name, len(frames), len(def.Models))
	}

	// Every frame is validated before the first write.
	valid := make([]domain.Frame, len(frames))
	for i, m := range def.Models {
		if valid[i], err = r.validator.Validate(frames[i], m); err != nil {
			return false, err
		}
	}
	for i, m := range def.Models {
		if err := r.tables.Load(ctx, m, name, valid[i]); err != nil {
			return false, err
		}
	}
	if err := r.ledger.Record(ctx, def.Name, name, version); err != nil {
		return false, err
	}
	logger.Info("file processed", "file_name", name, "version", version)
	return true, nil
}

// finish closes the history row. History failures are logged only.
func (r *Runner) finish(ctx context.Context, result RunResult, runErr error, logger *slog.Logger) {
	if r.runs == nil || result.RunID == "" {
		return
	}
	status := domain.PipelineRunStatusSuccess
	var msg *string
	if runErr != nil {
		status = domain.PipelineRunStatusFailed
		s := runErr.Error()
		msg = &s
	}
	// Record a cancelled run as failed even though ctx is done.
	if err := r.runs.FinishRun(context.WithoutCancel(ctx), result.RunID, status, result.RunCounts, msg); err != nil {
		logger.Warn("failed to record run finish", "error", err)
	}
}
