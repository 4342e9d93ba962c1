// Package app provides application-level wiring for the orchestrator: the
// storage engine, ledger, table manager, runner, pipeline registry, run
// history and scheduler.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"duck-etl/internal/config"
	"duck-etl/internal/db/repository"
	"duck-etl/internal/domain"
	"duck-etl/internal/engine"
	"duck-etl/internal/ledger"
	"duck-etl/internal/pipelines"
	"duck-etl/internal/schema"
	"duck-etl/internal/service/pipeline"
	"duck-etl/internal/tables"
)

// Deps holds the external dependencies that main() must provide: database
// handles, the bronze store, config and logger.
type Deps struct {
	Cfg         *config.Config
	DuckDB      *sql.DB
	LakeCatalog string  // attached DuckLake catalog; empty uses native DuckDB tables
	WriteDB     *sql.DB // run history; nil disables it
	Blobs       domain.BlobStore
	Logger      *slog.Logger
}

// App holds the fully-wired orchestrator.
type App struct {
	Service   *pipeline.Service
	Scheduler *pipeline.Scheduler
	Runner    *pipeline.Runner
	Ledger    *ledger.Ledger
	Tables    *tables.Manager
	Engine    *engine.DuckDBEngine
}

// New wires the orchestrator from deps and registers every configured
// pipeline. The ledger table is created if it does not exist yet.
func New(ctx context.Context, deps Deps, configured []config.PipelineConfig) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger

	// === Storage engine ===
	var engOpts []engine.Option
	if deps.LakeCatalog != "" {
		engOpts = append(engOpts, engine.WithLakeCatalog(deps.LakeCatalog))
	}
	eng := engine.NewDuckDBEngine(deps.DuckDB, logger.With("component", "engine"), engOpts...)

	// === Ledger + tables ===
	led := ledger.New(eng, ledger.Options{Reorder: cfg.ReorderLedger}, logger.With("component", "ledger"))
	if err := led.Init(ctx); err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	mgr := tables.NewManager(eng, tables.Options{
		CompactAfterLoad:  cfg.CompactAfterLoad,
		VacuumAfterEnsure: cfg.VacuumAfterEnsure,
		VacuumRetention:   cfg.VacuumRetention,
	}, logger.With("component", "tables"))

	// === Runner + service ===
	runner := pipeline.NewRunner(deps.Blobs, led, mgr, schema.NewValidator(), logger.With("component", "runner"))
	svc := pipeline.NewService(runner, led, logger.With("component", "pipelines"))
	if deps.WriteDB != nil {
		svc.SetRunRepository(repository.NewPipelineRunRepo(deps.WriteDB))
	}

	// === Registry ===
	for _, pc := range configured {
		entry, err := pipelines.Build(pc, logger)
		if err != nil {
			return nil, err
		}
		if err := svc.Register(ctx, entry); err != nil {
			return nil, err
		}
	}

	// The scheduler is wired last so registration above does not reload it
	// once per pipeline.
	sched := pipeline.NewScheduler(svc, svc, logger.With("component", "scheduler"))
	svc.SetScheduleReloader(sched)

	return &App{
		Service:   svc,
		Scheduler: sched,
		Runner:    runner,
		Ledger:    led,
		Tables:    mgr,
		Engine:    eng,
	}, nil
}
