package domain

import (
	"context"
	"time"
)

// Pipeline run status and trigger constants.
const (
	PipelineRunStatusRunning = "RUNNING"
	PipelineRunStatusSuccess = "SUCCESS"
	PipelineRunStatusFailed  = "FAILED"

	TriggerTypeManual    = "MANUAL"
	TriggerTypeScheduled = "SCHEDULED"
)

// RunCounts summarizes the files a pipeline run looked at.
type RunCounts struct {
	FilesSeen      int
	FilesProcessed int
	FilesSkipped   int
}

// PipelineRun is one recorded execution of a pipeline.
type PipelineRun struct {
	ID           string
	PipelineName string
	TriggerType  string
	Status       string
	RunCounts
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// PipelineRunFilter narrows ListRuns. Zero values mean "any".
type PipelineRunFilter struct {
	PipelineName string
	Status       string
	Limit        int
}

// EffectiveLimit clamps Limit to [1, 1000], defaulting to 100.
func (f PipelineRunFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return 100
	case f.Limit > 1000:
		return 1000
	default:
		return f.Limit
	}
}

// PipelineRunRepository persists run history in the control plane.
type PipelineRunRepository interface {
	CreateRun(ctx context.Context, run *PipelineRun) (*PipelineRun, error)
	FinishRun(ctx context.Context, id, status string, counts RunCounts, errorMsg *string) error
	GetRun(ctx context.Context, id string) (*PipelineRun, error)
	ListRuns(ctx context.Context, filter PipelineRunFilter) ([]PipelineRun, error)
}
