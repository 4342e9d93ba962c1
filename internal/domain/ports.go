package domain

import (
	"context"
	"time"
)

// Logical storage layers.
const (
	SilverSchema    = "silver"
	LedgerTableName = "meta_processed_files"
)

// TablePath locates a physical table in the storage engine.
type TablePath struct {
	Schema string
	Name   string
}

// SilverTable returns the silver path for a model name.
func SilverTable(name string) TablePath {
	return TablePath{Schema: SilverSchema, Name: name}
}

func (p TablePath) String() string { return p.Schema + "." + p.Name }

// TableSchema is the physical schema handed to StorageEngine.Create.
type TableSchema struct {
	Description string
	Columns     []Column
}

// CreateOptions controls StorageEngine.Create.
type CreateOptions struct {
	PartitionBy []string
	// ExistsOK turns create into create-if-absent. When false, creating a
	// table that already exists fails with a StorageError.
	ExistsOK bool
}

// Filter is an equality predicate on one column. A slice of filters is a
// conjunction.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// StorageEngine is the transactional table layer consumed by the orchestrator.
// Implemented by engine.DuckDBEngine.
type StorageEngine interface {
	// Create creates the table at path.
	Create(ctx context.Context, path TablePath, schema TableSchema, opts CreateOptions) error
	// Overwrite atomically replaces the rows matching predicate with frame.
	// Every row of frame must itself satisfy predicate.
	Overwrite(ctx context.Context, path TablePath, frame Frame, predicate []Filter) error
	// MergeUpsert updates rows matching on the match columns and inserts the
	// rest, in a single commit.
	MergeUpsert(ctx context.Context, path TablePath, frame Frame, match []string) error
	// Scan reads rows matching filters. An empty column list selects all columns.
	Scan(ctx context.Context, path TablePath, filters []Filter, columns []string) (Frame, error)
	// Compact merges small data files.
	Compact(ctx context.Context, path TablePath) error
	// Vacuum removes files no longer referenced and older than retention.
	Vacuum(ctx context.Context, path TablePath, retention time.Duration) error
	// Reorder rewrites the table sorted by columns for data locality.
	Reorder(ctx context.Context, path TablePath, columns []string) error
}

// BlobStore is append-style storage for raw source files keyed by
// (namespace, name). The namespace is the pipeline name.
type BlobStore interface {
	Upload(ctx context.Context, namespace, name string, content []byte) error
	Download(ctx context.Context, namespace, name string) ([]byte, error)
	List(ctx context.Context, namespace string) ([]string, error)
	// StatVersion returns the version (last-modified time) of a staged blob.
	StatVersion(ctx context.Context, namespace, name string) (time.Time, error)
}

// SchemaValidator validates and coerces a frame against a TableModel.
// Implemented by schema.Validator.
type SchemaValidator interface {
	Validate(frame Frame, model TableModel) (Frame, error)
}

// VersionLedger tracks the last processed version per (pipeline, file).
// Implemented by ledger.Ledger.
type VersionLedger interface {
	Get(ctx context.Context, pipelineName, fileName string) (time.Time, bool, error)
	Record(ctx context.Context, pipelineName, fileName string, version time.Time) error
}

// TableManager owns the lifecycle of silver tables.
// Implemented by tables.Manager.
type TableManager interface {
	EnsureTable(ctx context.Context, model TableModel) error
	Load(ctx context.Context, model TableModel, fileName string, rows Frame) error
}
