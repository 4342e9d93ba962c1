package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"duck-etl/internal/ddl"
	"duck-etl/internal/domain"
	"duck-etl/internal/schema"
)

// Source is the pipeline-specific half of a run: how raw files reach bronze
// and how one bronze file becomes one frame per model.
type Source interface {
	// Extract stages raw files through stage.
	Extract(ctx context.Context, stage *Stager) error
	// Transform returns one frame per declared model, in declaration order.
	Transform(ctx context.Context, fileName string, content []byte) ([]domain.Frame, error)
}

// Definition is a pipeline: the name keys its bronze namespace and ledger
// records, Models are the silver tables it owns.
type Definition struct {
	Name   string
	Models []domain.TableModel
	Source Source
}

// Validate checks the definition before anything is run.
func (d Definition) Validate() error {
	if err := ddl.ValidateIdentifier(d.Name); err != nil {
		return domain.ErrConfiguration("pipeline name: %v", err)
	}
	if d.Source == nil {
		return domain.ErrConfiguration("pipeline %q has no source", d.Name)
	}
	if len(d.Models) == 0 {
		return domain.ErrConfiguration("pipeline %q declares no models", d.Name)
	}
	seen := make(map[string]bool, len(d.Models))
	for _, m := range d.Models {
		if seen[m.Name] {
			return domain.ErrConfiguration("pipeline %q declares model %q twice", d.Name, m.Name)
		}
		seen[m.Name] = true
		if m.Name == domain.LedgerTableName {
			return domain.ErrConfiguration("pipeline %q: model name %q is reserved", d.Name, m.Name)
		}
		if _, ok := m.Column(domain.FileNameColumn); ok {
			return domain.ErrConfiguration("pipeline %q model %q declares reserved column %q", d.Name, m.Name, domain.FileNameColumn)
		}
		if err := schema.CheckModel(m); err != nil {
			return fmt.Errorf("pipeline %q: %w", d.Name, err)
		}
	}
	return nil
}

// Stager writes raw files into one pipeline's bronze namespace.
type Stager struct {
	blobs     domain.BlobStore
	namespace string
	logger    *slog.Logger
	staged    []string
}

// NewStager returns a Stager scoped to namespace.
func NewStager(blobs domain.BlobStore, namespace string, logger *slog.Logger) *Stager {
	return &Stager{blobs: blobs, namespace: namespace, logger: logger}
}

// Save stages content as name. Content identical to the staged blob is not
// uploaded again, so the blob keeps its version and is not reprocessed.
func (s *Stager) Save(ctx context.Context, name string, content []byte) error {
	existing, err := s.blobs.Download(ctx, s.namespace, name)
	var nf *domain.NotFoundError
	switch {
	case err == nil && bytes.Equal(existing, content):
		s.logger.Debug("bronze file unchanged", "pipeline", s.namespace, "file_name", name)
		return nil
	case err != nil && !errors.As(err, &nf):
		return err
	}
	if err := s.blobs.Upload(ctx, s.namespace, name, content); err != nil {
		return err
	}
	s.staged = append(s.staged, name)
	s.logger.Info("bronze file staged", "pipeline", s.namespace, "file_name", name, "bytes", len(content))
	return nil
}

// Staged returns the names uploaded through this stager.
func (s *Stager) Staged() []string { return s.staged }
