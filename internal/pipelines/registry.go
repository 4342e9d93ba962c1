// Package pipelines turns configured pipeline instances into registered
// pipeline entries.
package pipelines

import (
	"log/slog"
	"sort"

	"duck-etl/internal/config"
	"duck-etl/internal/domain"
	"duck-etl/internal/pipelines/customers"
	"duck-etl/internal/service/pipeline"
)

// Builder creates the definition of one pipeline instance of a kind.
type Builder func(cfg config.PipelineConfig, logger *slog.Logger) (pipeline.Definition, error)

var builders = map[string]Builder{
	customers.Kind: func(cfg config.PipelineConfig, logger *slog.Logger) (pipeline.Definition, error) {
		if cfg.InputDir == "" {
			return pipeline.Definition{}, domain.ErrConfiguration("pipeline %q: input_dir is required", cfg.Name)
		}
		return customers.Definition(cfg.Name, cfg.InputDir, logger)
	},
}

// Kinds lists the known pipeline kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build returns the service entry for cfg.
func Build(cfg config.PipelineConfig, logger *slog.Logger) (pipeline.Entry, error) {
	build, ok := builders[cfg.Kind]
	if !ok {
		return pipeline.Entry{}, domain.ErrConfiguration("pipeline %q: unknown kind %q (known: %v)", cfg.Name, cfg.Kind, Kinds())
	}
	def, err := build(cfg, logger.With("pipeline", cfg.Name))
	if err != nil {
		return pipeline.Entry{}, err
	}
	return pipeline.Entry{
		Definition:  def,
		Description: cfg.Description,
		Schedule:    cfg.Schedule,
		Paused:      cfg.IsPaused,
	}, nil
}
