// Package tables owns the lifecycle of silver tables: creation from a model,
// replace-by-file loads and best-effort storage maintenance.
package tables

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"duck-etl/internal/domain"
)

// Compile-time check.
var _ domain.TableManager = (*Manager)(nil)

// Options toggles the maintenance hooks run after table operations.
type Options struct {
	// CompactAfterLoad compacts a table after every load.
	CompactAfterLoad bool
	// VacuumAfterEnsure vacuums a table after EnsureTable.
	VacuumAfterEnsure bool
	// VacuumRetention is the snapshot age kept by vacuum.
	VacuumRetention time.Duration
}

// Manager creates and loads silver tables through a storage engine.
type Manager struct {
	engine domain.StorageEngine
	opts   Options
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(engine domain.StorageEngine, opts Options, logger *slog.Logger) *Manager {
	return &Manager{engine: engine, opts: opts, logger: logger}
}

// Schema returns the physical schema of a model's table: the model columns
// followed by the non-nullable file_name provenance column.
func Schema(model domain.TableModel) domain.TableSchema {
	cols := make([]domain.Column, 0, len(model.Columns)+1)
	cols = append(cols, model.Columns...)
	cols = append(cols, domain.Column{
		Name:        domain.FileNameColumn,
		Type:        domain.TypeVarchar,
		Description: "Bronze file the row was loaded from.",
	})
	return domain.TableSchema{Description: model.Description, Columns: cols}
}

// EnsureTable creates silver.<model> partitioned by file_name unless it
// already exists. An existing table is left as is, even if the model changed.
func (m *Manager) EnsureTable(ctx context.Context, model domain.TableModel) error {
	if _, ok := model.Column(domain.FileNameColumn); ok {
		return domain.ErrConfiguration("model %q declares reserved column %q", model.Name, domain.FileNameColumn)
	}
	path := domain.SilverTable(model.Name)
	err := m.engine.Create(ctx, path, Schema(model), domain.CreateOptions{
		PartitionBy: []string{domain.FileNameColumn},
		ExistsOK:    true,
	})
	if err != nil {
		return fmt.Errorf("ensure table %s: %w", path, err)
	}

	if m.opts.VacuumAfterEnsure {
		if err := m.engine.Vacuum(ctx, path, m.opts.VacuumRetention); err != nil {
			m.logger.Warn("vacuum failed", "table", path.String(), "error", err)
		}
	}
	return nil
}

// Load replaces every row of fileName in the model's table with rows. Rows
// belonging to other files are untouched.
func (m *Manager) Load(ctx context.Context, model domain.TableModel, fileName string, rows domain.Frame) error {
	path := domain.SilverTable(model.Name)
	frame := rows.WithConstant(domain.FileNameColumn, fileName)
	predicate := []domain.Filter{domain.Eq(domain.FileNameColumn, fileName)}
	if err := m.engine.Overwrite(ctx, path, frame, predicate); err != nil {
		return fmt.Errorf("load %s into %s: %w", fileName, path, err)
	}
	m.logger.Info("file loaded", "table", path.String(), "file_name", fileName, "rows", frame.Len())

	if m.opts.CompactAfterLoad {
		if err := m.engine.Compact(ctx, path); err != nil {
			m.logger.Warn("compact failed", "table", path.String(), "error", err)
		}
	}
	return nil
}

// Scan reads a model's rows, restricted to fileName when it is not empty.
func (m *Manager) Scan(ctx context.Context, model domain.TableModel, fileName string) (domain.Frame, error) {
	var filters []domain.Filter
	if fileName != "" {
		filters = append(filters, domain.Eq(domain.FileNameColumn, fileName))
	}
	return m.engine.Scan(ctx, domain.SilverTable(model.Name), filters, nil)
}
