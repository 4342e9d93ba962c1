package api

import (
	"time"

	"duck-etl/internal/domain"
	"duck-etl/internal/service/pipeline"
)

// Pipeline describes a registered pipeline.
type Pipeline struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Schedule    string   `json:"schedule,omitempty"`
	Paused      bool     `json:"paused"`
	Running     bool     `json:"running"`
	Models      []string `json:"models"`
}

// ListPipelinesResponse is returned by GET /v1/pipelines.
type ListPipelinesResponse struct {
	Pipelines []Pipeline `json:"pipelines"`
}

// RunResult is returned by POST /v1/pipelines/{name}/run.
type RunResult struct {
	RunID          string   `json:"run_id,omitempty"`
	PipelineName   string   `json:"pipeline_name"`
	FilesSeen      int      `json:"files_seen"`
	FilesProcessed int      `json:"files_processed"`
	FilesSkipped   int      `json:"files_skipped"`
	Processed      []string `json:"processed"`
}

// Run is one recorded pipeline run.
type Run struct {
	ID             string     `json:"id"`
	PipelineName   string     `json:"pipeline_name"`
	TriggerType    string     `json:"trigger_type"`
	Status         string     `json:"status"`
	FilesSeen      int        `json:"files_seen"`
	FilesProcessed int        `json:"files_processed"`
	FilesSkipped   int        `json:"files_skipped"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// ListRunsResponse is returned by GET /v1/pipelines/{name}/runs.
type ListRunsResponse struct {
	Runs []Run `json:"runs"`
}

// ProcessedFile is one ledger record.
type ProcessedFile struct {
	FileName    string    `json:"file_name"`
	FileVersion time.Time `json:"file_version"`
	ProcessedAt time.Time `json:"processed_at"`
}

// LedgerResponse is returned by GET /v1/pipelines/{name}/ledger.
type LedgerResponse struct {
	Files []ProcessedFile `json:"files"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// === Mapping helpers ===

func pipelineToAPI(e pipeline.Entry, running bool) Pipeline {
	models := make([]string, 0, len(e.Definition.Models))
	for _, m := range e.Definition.Models {
		models = append(models, m.Name)
	}
	return Pipeline{
		Name:        e.Name(),
		Description: e.Description,
		Schedule:    e.Schedule,
		Paused:      e.Paused,
		Running:     running,
		Models:      models,
	}
}

func runResultToAPI(name string, res pipeline.RunResult) RunResult {
	processed := res.Processed
	if processed == nil {
		processed = []string{}
	}
	return RunResult{
		RunID:          res.RunID,
		PipelineName:   name,
		FilesSeen:      res.FilesSeen,
		FilesProcessed: res.FilesProcessed,
		FilesSkipped:   res.FilesSkipped,
		Processed:      processed,
	}
}

func runToAPI(r domain.PipelineRun) Run {
	return Run{
		ID:             r.ID,
		PipelineName:   r.PipelineName,
		TriggerType:    r.TriggerType,
		Status:         r.Status,
		FilesSeen:      r.FilesSeen,
		FilesProcessed: r.FilesProcessed,
		FilesSkipped:   r.FilesSkipped,
		ErrorMessage:   r.ErrorMessage,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}
