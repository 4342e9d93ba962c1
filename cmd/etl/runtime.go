package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"duck-etl/internal/app"
	"duck-etl/internal/blobstore"
	"duck-etl/internal/config"
	internaldb "duck-etl/internal/db"
)

// runtime is the wired orchestrator plus the handles main must close.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	app    *app.App
	closer []func() error
}

// openRuntime loads config, opens DuckDB, the bronze store and the run
// history database, and registers the configured pipelines.
func openRuntime(ctx context.Context, opts *rootOptions) (_ *runtime, err error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.pipelines != "" {
		cfg.PipelinesFile = opts.pipelines
	}
	logger := cfg.NewLogger(os.Stderr)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	pipelineCfgs, err := config.LoadPipelines(cfg.PipelinesFile)
	if err != nil {
		return nil, err
	}

	duck, lakeCatalog, err := app.OpenDuckDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.closer = append(rt.closer, duck.Close)

	blobs, err := blobstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open bronze store: %w", err)
	}
	logger.Info("bronze store ready", "location", blobstore.Describe(cfg))

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	rt.closer = append(rt.closer, readDB.Close, writeDB.Close)
	if err := internaldb.RunMigrations(writeDB); err != nil {
		return nil, fmt.Errorf("migrate run history: %w", err)
	}

	rt.app, err = app.New(ctx, app.Deps{
		Cfg:         cfg,
		DuckDB:      duck,
		LakeCatalog: lakeCatalog,
		WriteDB:     writeDB,
		Blobs:       blobs,
		Logger:      logger,
	}, pipelineCfgs)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Close releases handles in reverse order of opening.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closer) - 1; i >= 0; i-- {
		if err := rt.closer[i](); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	rt.closer = nil
	return errors.Join(errs...)
}
