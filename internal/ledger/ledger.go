// Package ledger records the last processed version of every bronze file in
// silver.meta_processed_files.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"duck-etl/internal/domain"
)

// Ledger column names.
const (
	colPipelineName = "pipeline_name"
	colFileName     = "file_name"
	colFileVersion  = "file_version"
	colProcessedAt  = "processed_at"
)

// Compile-time check.
var _ domain.VersionLedger = (*Ledger)(nil)

var path = domain.TablePath{Schema: domain.SilverSchema, Name: domain.LedgerTableName}

var tableSchema = domain.TableSchema{
	Description: "Last processed version of every bronze file, per pipeline.",
	Columns: []domain.Column{
		{Name: colPipelineName, Type: domain.TypeVarchar, Description: "Pipeline that owns the file."},
		{Name: colFileName, Type: domain.TypeVarchar, Description: "Bronze file name."},
		{Name: colFileVersion, Type: domain.TypeTimestamp, Description: "Last-modified time of the processed file (UTC)."},
		{Name: colProcessedAt, Type: domain.TypeTimestamp, Description: "When the file was last loaded (UTC)."},
	},
}

// Options configures a Ledger.
type Options struct {
	// Reorder rewrites the ledger sorted by file name after every record.
	Reorder bool
	// Now is the clock used for processed_at. Defaults to time.Now.
	Now func() time.Time
}

// Ledger is the VersionLedger backed by a storage engine table.
type Ledger struct {
	engine  domain.StorageEngine
	reorder bool
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Ledger. Call Init before first use.
func New(engine domain.StorageEngine, opts Options, logger *slog.Logger) *Ledger {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{engine: engine, reorder: opts.Reorder, now: now, logger: logger}
}

// Path returns the ledger table location.
func Path() domain.TablePath { return path }

// Init creates the ledger table if it does not exist.
func (l *Ledger) Init(ctx context.Context) error {
	err := l.engine.Create(ctx, path, tableSchema, domain.CreateOptions{
		PartitionBy: []string{colPipelineName},
		ExistsOK:    true,
	})
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	return nil
}

// Get returns the recorded version of (pipelineName, fileName). found is false
// when the file was never processed.
func (l *Ledger) Get(ctx context.Context, pipelineName, fileName string) (time.Time, bool, error) {
	frame, err := l.engine.Scan(ctx, path,
		[]domain.Filter{domain.Eq(colPipelineName, pipelineName), domain.Eq(colFileName, fileName)},
		[]string{colFileVersion})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get version of %s/%s: %w", pipelineName, fileName, err)
	}
	switch frame.Len() {
	case 0:
		return time.Time{}, false, nil
	case 1:
	default:
		return time.Time{}, false, domain.ErrStorage("get", path.String(),
			fmt.Errorf("%d records for %s/%s, want at most 1", frame.Len(), pipelineName, fileName))
	}
	v, _ := frame.Value(0, colFileVersion)
	version, ok := v.(time.Time)
	if !ok {
		return time.Time{}, false, domain.ErrStorage("get", path.String(),
			fmt.Errorf("file_version of %s/%s is %T, want a timestamp", pipelineName, fileName, v))
	}
	return domain.NormalizeVersion(version), true, nil
}

// Record upserts the version of (pipelineName, fileName) with processed_at set
// to now, in a single commit.
func (l *Ledger) Record(ctx context.Context, pipelineName, fileName string, version time.Time) error {
	frame := domain.NewFrame(colPipelineName, colFileName, colFileVersion, colProcessedAt)
	frame.Append(pipelineName, fileName, domain.NormalizeVersion(version), domain.NormalizeVersion(l.now()))
	if err := l.engine.MergeUpsert(ctx, path, frame, []string{colPipelineName, colFileName}); err != nil {
		return fmt.Errorf("record version of %s/%s: %w", pipelineName, fileName, err)
	}

	if l.reorder {
		if err := l.engine.Reorder(ctx, path, []string{colFileName}); err != nil {
			l.logger.Warn("ledger reorder failed", "error", err)
		}
	}
	return nil
}

// List returns every record of pipelineName ordered by file name.
func (l *Ledger) List(ctx context.Context, pipelineName string) ([]domain.ProcessedFile, error) {
	frame, err := l.engine.Scan(ctx, path,
		[]domain.Filter{domain.Eq(colPipelineName, pipelineName)},
		[]string{colPipelineName, colFileName, colFileVersion, colProcessedAt})
	if err != nil {
		return nil, fmt.Errorf("list ledger of %s: %w", pipelineName, err)
	}
	out := make([]domain.ProcessedFile, 0, frame.Len())
	for _, row := range frame.Rows {
		rec := domain.ProcessedFile{}
		rec.PipelineName, _ = row[0].(string)
		rec.FileName, _ = row[1].(string)
		if v, ok := row[2].(time.Time); ok {
			rec.FileVersion = domain.NormalizeVersion(v)
		}
		if v, ok := row[3].(time.Time); ok {
			rec.ProcessedAt = domain.NormalizeVersion(v)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}
