package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"duck-etl/internal/domain"
)

// ScheduleSource lists the pipelines that should run on a schedule.
type ScheduleSource interface {
	Schedules(ctx context.Context) ([]Entry, error)
}

// Scheduler manages cron-based pipeline execution.
type Scheduler struct {
	cron    *cron.Cron
	svc     *Service
	source  ScheduleSource
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID // pipeline name → cron entry
}

// NewScheduler creates a new pipeline scheduler.
func NewScheduler(svc *Service, source ScheduleSource, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		svc:     svc,
		source:  source,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads all scheduled pipelines and starts the cron scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	err := s.loadSchedules(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("pipeline scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("pipeline scheduler stopped")
}

// Reload clears all cron entries and reloads them from the source.
// Implements the ScheduleReloader interface.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entryID := range s.entries {
		s.cron.Remove(entryID)
	}
	s.entries = make(map[string]cron.EntryID)

	return s.loadSchedules(ctx)
}

// Scheduled returns the names of the pipelines currently scheduled.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	return out
}

// loadSchedules adds a cron entry per scheduled pipeline. Callers hold mu.
func (s *Scheduler) loadSchedules(ctx context.Context) error {
	entries, err := s.source.Schedules(ctx)
	if err != nil {
		return err
	}

	for _, e := range entries {
		name, schedule := e.Name(), e.Schedule
		entryID, err := s.cron.AddFunc(schedule, func() {
			_, runErr := s.svc.Trigger(context.Background(), name, domain.TriggerTypeScheduled)
			var conflict *domain.ConflictError
			switch {
			case errors.As(runErr, &conflict):
				s.logger.Info("scheduled run skipped, pipeline still running", "pipeline", name)
			case runErr != nil:
				s.logger.Warn("scheduled run failed", "pipeline", name, "error", runErr)
			}
		})
		if err != nil {
			s.logger.Warn("invalid cron schedule",
				"pipeline", name,
				"schedule", schedule,
				"error", err,
			)
			continue
		}

		s.entries[name] = entryID
		s.logger.Info("scheduled pipeline", "pipeline", name, "schedule", schedule)
	}

	return nil
}

// Compile-time check that Scheduler implements ScheduleReloader.
var _ ScheduleReloader = (*Scheduler)(nil)
