package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"duck-etl/internal/domain"
)

// ScheduleReloader allows the service to notify the scheduler to reload.
type ScheduleReloader interface {
	Reload(ctx context.Context) error
}

// LedgerReader lists the ledger records of a pipeline.
type LedgerReader interface {
	List(ctx context.Context, pipelineName string) ([]domain.ProcessedFile, error)
}

// Entry is a registered pipeline with its scheduling settings.
type Entry struct {
	Definition  Definition
	Description string
	// Schedule is a cron expression. Empty means manual runs only.
	Schedule string
	Paused   bool
}

// Name returns the pipeline name.
func (e Entry) Name() string { return e.Definition.Name }

// Service is the registry of pipelines. It runs them through a Runner and
// refuses to start a pipeline that is already running.
type Service struct {
	runner   *Runner
	ledger   LedgerReader
	runs     domain.PipelineRunRepository
	logger   *slog.Logger
	reloader ScheduleReloader

	mu      sync.Mutex
	entries map[string]Entry
	running map[string]bool
}

// NewService creates a new Service.
func NewService(runner *Runner, ledger LedgerReader, logger *slog.Logger) *Service {
	return &Service{
		runner:  runner,
		ledger:  ledger,
		logger:  logger,
		entries: make(map[string]Entry),
		running: make(map[string]bool),
	}
}

// SetRunRepository enables run history on the service and its runner.
func (s *Service) SetRunRepository(runs domain.PipelineRunRepository) {
	s.runs = runs
	s.runner.SetRunRepository(runs)
}

// SetScheduleReloader sets the schedule reloader (breaks circular dep).
func (s *Service) SetScheduleReloader(r ScheduleReloader) {
	s.reloader = r
}

// Register adds a pipeline. Pipeline names are unique, and so are the silver
// tables: a model name owned by another pipeline is rejected, since loads only
// replace rows by file name.
func (s *Service) Register(ctx context.Context, e Entry) error {
	if err := e.Definition.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.entries[e.Name()]; ok {
		s.mu.Unlock()
		return domain.ErrConflict("pipeline %q already registered", e.Name())
	}
	if owner, model, ok := s.tableOwner(e.Definition.Models); ok {
		s.mu.Unlock()
		return domain.ErrConfiguration("pipeline %q: table %s is already loaded by pipeline %q",
			e.Name(), domain.SilverTable(model), owner)
	}
	s.entries[e.Name()] = e
	s.mu.Unlock()

	if s.reloader != nil {
		_ = s.reloader.Reload(ctx)
	}
	return nil
}

// tableOwner reports the registered pipeline that already declares one of
// models. Callers hold s.mu.
func (s *Service) tableOwner(models []domain.TableModel) (owner, model string, ok bool) {
	for _, m := range models {
		for name, other := range s.entries {
			for _, om := range other.Definition.Models {
				if om.Name == m.Name {
					return name, m.Name, true
				}
			}
		}
	}
	return "", "", false
}

// Get returns the pipeline registered under name.
func (s *Service) Get(name string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return Entry{}, domain.ErrNotFound("pipeline %q not found", name)
	}
	return e, nil
}

// List returns every registered pipeline ordered by name.
func (s *Service) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Running reports whether name has a run in progress.
func (s *Service) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[name]
}

// Schedules returns the pipelines that have a cron schedule and are not paused.
func (s *Service) Schedules(_ context.Context) ([]Entry, error) {
	var out []Entry
	for _, e := range s.List() {
		if e.Schedule != "" && !e.Paused {
			out = append(out, e)
		}
	}
	return out, nil
}

// Trigger runs the named pipeline and waits for it to finish.
func (s *Service) Trigger(ctx context.Context, name, trigger string) (RunResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return RunResult{}, domain.ErrNotFound("pipeline %q not found", name)
	}
	if s.running[name] {
		s.mu.Unlock()
		return RunResult{}, domain.ErrConflict("pipeline %q is already running", name)
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()
	return s.runner.Run(ctx, e.Definition, trigger)
}

// RunAll runs the named pipelines, or every registered one when names is
// empty, at most parallelism at a time. A failing pipeline does not stop the
// others; all failures are joined.
func (s *Service) RunAll(ctx context.Context, names []string, trigger string, parallelism int) (map[string]RunResult, error) {
	if len(names) == 0 {
		for _, e := range s.List() {
			names = append(names, e.Name())
		}
	}
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]RunResult, len(names))
	errs := make([]error, len(names))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, name := range names {
		g.Go(func() error {
			results[i], errs[i] = s.Trigger(ctx, name, trigger)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]RunResult, len(names))
	for i, name := range names {
		if errs[i] == nil {
			out[name] = results[i]
		}
	}
	return out, errors.Join(errs...)
}

// Ledger returns the ledger records of the named pipeline.
func (s *Service) Ledger(ctx context.Context, name string) ([]domain.ProcessedFile, error) {
	if _, err := s.Get(name); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, name)
}

// ListRuns returns the run history of the named pipeline, newest first.
func (s *Service) ListRuns(ctx context.Context, name string, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
	if _, err := s.Get(name); err != nil {
		return nil, err
	}
	if s.runs == nil {
		return []domain.PipelineRun{}, nil
	}
	filter.PipelineName = name
	return s.runs.ListRuns(ctx, filter)
}

// GetRun returns one recorded run.
func (s *Service) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if s.runs == nil {
		return nil, domain.ErrNotFound("run %q not found", id)
	}
	return s.runs.GetRun(ctx, id)
}
