package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"duck-etl/internal/ddl"
	"duck-etl/internal/domain"
)

// insertBatchSize caps the number of rows per multi-row INSERT.
const insertBatchSize = 500

// Compile-time check.
var _ domain.StorageEngine = (*DuckDBEngine)(nil)

// DuckDBEngine implements domain.StorageEngine on a DuckDB connection. Without
// a lake catalog tables live in the connection's default database; with one,
// they live in the attached DuckLake catalog and get real partitioning and
// snapshot maintenance.
type DuckDBEngine struct {
	db      *sql.DB
	catalog string
	logger  *slog.Logger
}

// Option configures a DuckDBEngine.
type Option func(*DuckDBEngine)

// WithLakeCatalog routes every table into the given attached DuckLake catalog.
func WithLakeCatalog(catalog string) Option {
	return func(e *DuckDBEngine) { e.catalog = catalog }
}

// NewDuckDBEngine creates a storage engine over db.
func NewDuckDBEngine(db *sql.DB, logger *slog.Logger, opts ...Option) *DuckDBEngine {
	e := &DuckDBEngine{db: db, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lake reports whether the engine writes to a DuckLake catalog.
func (e *DuckDBEngine) Lake() bool { return e.catalog != "" }

func (e *DuckDBEngine) ref(path domain.TablePath) ddl.TableRef {
	return ddl.TableRef{Catalog: e.catalog, Schema: path.Schema, Table: path.Name}
}

// Create creates the table at path. Column descriptions and metadata become
// column comments. Partitioning is physical only in DuckLake mode.
func (e *DuckDBEngine) Create(ctx context.Context, path domain.TablePath, schema domain.TableSchema, opts domain.CreateOptions) error {
	ref := e.ref(path)
	exists, err := e.tableExists(ctx, path)
	if err != nil {
		return domain.ErrStorage("create", path.String(), err)
	}
	if exists {
		if opts.ExistsOK {
			return nil
		}
		return domain.ErrStorage("create", path.String(), errors.New("table already exists"))
	}

	cols := make([]ddl.ColumnDef, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = ddl.ColumnDef{Name: c.Name, Type: string(c.Type), NotNull: !c.Nullable}
	}
	stmts := make([]string, 0, len(cols)+3)
	schemaSQL, err := ddl.CreateSchema(e.catalog, path.Schema)
	if err != nil {
		return domain.ErrStorage("create", path.String(), err)
	}
	tableSQL, err := ddl.CreateTable(ref, cols)
	if err != nil {
		return domain.ErrStorage("create", path.String(), err)
	}
	stmts = append(stmts, schemaSQL, tableSQL)
	if schema.Description != "" {
		s, err := ddl.CommentOnTable(ref, schema.Description)
		if err != nil {
			return domain.ErrStorage("create", path.String(), err)
		}
		stmts = append(stmts, s)
	}
	for _, c := range schema.Columns {
		comment := c.Comment()
		if comment == "" {
			continue
		}
		s, err := ddl.CommentOnColumn(ref, c.Name, comment)
		if err != nil {
			return domain.ErrStorage("create", path.String(), err)
		}
		stmts = append(stmts, s)
	}
	if e.Lake() && len(opts.PartitionBy) > 0 {
		s, err := ddl.SetPartitionedBy(ref, opts.PartitionBy)
		if err != nil {
			return domain.ErrStorage("create", path.String(), err)
		}
		stmts = append(stmts, s)
	}

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.ErrStorage("create", path.String(), err)
	}
	e.logger.Debug("table created", "table", path.String(), "partition_by", opts.PartitionBy)
	return nil
}

// Overwrite deletes the rows matching predicate and inserts frame in a single
// transaction. A row of frame that does not satisfy predicate fails the call
// before anything is written.
func (e *DuckDBEngine) Overwrite(ctx context.Context, path domain.TablePath, frame domain.Frame, predicate []domain.Filter) error {
	if err := checkPredicate(frame, predicate); err != nil {
		return domain.ErrStorage("overwrite", path.String(), err)
	}
	ref := e.ref(path)
	cols := make([]string, len(predicate))
	args := make([]any, len(predicate))
	for i, f := range predicate {
		cols[i] = f.Column
		args[i] = f.Value
	}
	deleteSQL, err := ddl.DeleteWhere(ref, cols)
	if err != nil {
		return domain.ErrStorage("overwrite", path.String(), err)
	}

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteSQL, args...)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			e.logger.Debug("rows replaced", "table", path.String(), "deleted", n, "inserted", frame.Len())
		}
		return insertRows(ctx, tx, ref, frame)
	})
	return domain.ErrStorage("overwrite", path.String(), err)
}

// MergeUpsert updates the rows matching each frame row on the match columns
// and inserts the frame rows that matched nothing, in a single transaction.
func (e *DuckDBEngine) MergeUpsert(ctx context.Context, path domain.TablePath, frame domain.Frame, match []string) error {
	if len(match) == 0 {
		return domain.ErrStorage("merge", path.String(), errors.New("at least one match column is required"))
	}
	matchIdx := make([]int, len(match))
	for i, c := range match {
		matchIdx[i] = frame.Index(c)
		if matchIdx[i] < 0 {
			return domain.ErrStorage("merge", path.String(), fmt.Errorf("match column %q not in frame", c))
		}
	}
	var setCols []string
	var setIdx []int
	for i, c := range frame.Columns {
		if !slices.Contains(match, c) {
			setCols = append(setCols, c)
			setIdx = append(setIdx, i)
		}
	}

	ref := e.ref(path)
	var updateSQL, lookupSQL string
	var err error
	if len(setCols) > 0 {
		updateSQL, err = ddl.UpdateWhere(ref, setCols, match)
	} else {
		lookupSQL, err = ddl.Select(ref, nil, match, nil)
	}
	if err != nil {
		return domain.ErrStorage("merge", path.String(), err)
	}
	insertSQL, err := ddl.InsertValues(ref, frame.Columns, 1)
	if err != nil {
		return domain.ErrStorage("merge", path.String(), err)
	}

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		for _, row := range frame.Rows {
			keys := pick(row, matchIdx)
			matched := false
			if updateSQL != "" {
				res, err := tx.ExecContext(ctx, updateSQL, append(pick(row, setIdx), keys...)...)
				if err != nil {
					return fmt.Errorf("update: %w", err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("rows affected: %w", err)
				}
				matched = n > 0
			} else {
				rows, err := tx.QueryContext(ctx, lookupSQL, keys...)
				if err != nil {
					return fmt.Errorf("lookup: %w", err)
				}
				matched = rows.Next()
				if err := rows.Close(); err != nil {
					return err
				}
			}
			if matched {
				continue
			}
			if _, err := tx.ExecContext(ctx, insertSQL, row...); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
		}
		return nil
	})
	return domain.ErrStorage("merge", path.String(), err)
}

// Scan reads the rows matching filters. Values keep the driver's Go types.
func (e *DuckDBEngine) Scan(ctx context.Context, path domain.TablePath, filters []domain.Filter, columns []string) (domain.Frame, error) {
	cols := make([]string, len(filters))
	args := make([]any, len(filters))
	for i, f := range filters {
		cols[i] = f.Column
		args[i] = f.Value
	}
	query, err := ddl.Select(e.ref(path), columns, cols, nil)
	if err != nil {
		return domain.Frame{}, domain.ErrStorage("scan", path.String(), err)
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Frame{}, domain.ErrStorage("scan", path.String(), err)
	}
	defer rows.Close() //nolint:errcheck

	names, err := rows.Columns()
	if err != nil {
		return domain.Frame{}, domain.ErrStorage("scan", path.String(), err)
	}
	out := domain.NewFrame(names...)
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Frame{}, domain.ErrStorage("scan", path.String(), err)
		}
		out.Append(vals...)
	}
	if err := rows.Err(); err != nil {
		return domain.Frame{}, domain.ErrStorage("scan", path.String(), err)
	}
	return out, nil
}

// Compact merges small data files. DuckLake merges adjacent files of the whole
// catalog; native DuckDB checkpoints the WAL into the database file.
func (e *DuckDBEngine) Compact(ctx context.Context, path domain.TablePath) error {
	stmt := "CHECKPOINT"
	if e.Lake() {
		var err error
		if stmt, err = ddl.MergeAdjacentFiles(e.catalog); err != nil {
			return domain.ErrStorage("compact", path.String(), err)
		}
	}
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return domain.ErrStorage("compact", path.String(), err)
	}
	return nil
}

// Vacuum expires snapshots older than retention and deletes the files only
// they referenced. Native DuckDB has no snapshots; it reclaims space on
// checkpoint and ignores retention.
func (e *DuckDBEngine) Vacuum(ctx context.Context, path domain.TablePath, retention time.Duration) error {
	if !e.Lake() {
		if _, err := e.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
			return domain.ErrStorage("vacuum", path.String(), err)
		}
		return nil
	}
	expire, err := ddl.ExpireSnapshots(e.catalog, retention)
	if err != nil {
		return domain.ErrStorage("vacuum", path.String(), err)
	}
	cleanup, err := ddl.CleanupOldFiles(e.catalog)
	if err != nil {
		return domain.ErrStorage("vacuum", path.String(), err)
	}
	for _, stmt := range []string{expire, cleanup} {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return domain.ErrStorage("vacuum", path.String(), err)
		}
	}
	return nil
}

// Reorder rewrites the table sorted by columns so rows sharing a key are
// stored together. The rewrite runs in one transaction on one connection,
// which also scopes the temporary copy.
func (e *DuckDBEngine) Reorder(ctx context.Context, path domain.TablePath, columns []string) error {
	ref := e.ref(path)
	tmp := "reorder_" + path.Name
	copySQL, err := ddl.CreateTempSortedCopy(tmp, ref, columns)
	if err != nil {
		return domain.ErrStorage("reorder", path.String(), err)
	}
	deleteSQL, err := ddl.DeleteWhere(ref, nil)
	if err != nil {
		return domain.ErrStorage("reorder", path.String(), err)
	}
	insertSQL, err := ddl.InsertFromTemp(ref, tmp)
	if err != nil {
		return domain.ErrStorage("reorder", path.String(), err)
	}
	dropSQL, err := ddl.DropTempTable(tmp)
	if err != nil {
		return domain.ErrStorage("reorder", path.String(), err)
	}

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range []string{copySQL, deleteSQL, insertSQL, dropSQL} {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	return domain.ErrStorage("reorder", path.String(), err)
}

func (e *DuckDBEngine) tableExists(ctx context.Context, path domain.TablePath) (bool, error) {
	query := `SELECT count(*) FROM information_schema.tables
		WHERE table_catalog = current_database() AND table_schema = ? AND table_name = ?`
	args := []any{path.Schema, path.Name}
	if e.Lake() {
		query = `SELECT count(*) FROM information_schema.tables
		WHERE table_catalog = ? AND table_schema = ? AND table_name = ?`
		args = append([]any{e.catalog}, args...)
	}
	var n int
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return n > 0, nil
}

func (e *DuckDBEngine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, ref ddl.TableRef, frame domain.Frame) error {
	for start := 0; start < frame.Len(); start += insertBatchSize {
		end := min(start+insertBatchSize, frame.Len())
		batch := frame.Rows[start:end]
		stmt, err := ddl.InsertValues(ref, frame.Columns, len(batch))
		if err != nil {
			return err
		}
		args := make([]any, 0, len(batch)*len(frame.Columns))
		for i, row := range batch {
			if len(row) != len(frame.Columns) {
				return fmt.Errorf("row %d has %d values, want %d", start+i, len(row), len(frame.Columns))
			}
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	return nil
}

func checkPredicate(frame domain.Frame, predicate []domain.Filter) error {
	for _, f := range predicate {
		idx := frame.Index(f.Column)
		if idx < 0 {
			if frame.Len() == 0 {
				continue
			}
			return fmt.Errorf("predicate column %q not in frame", f.Column)
		}
		for i, row := range frame.Rows {
			if idx >= len(row) {
				return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(frame.Columns))
			}
			if !sameValue(row[idx], f.Value) {
				return fmt.Errorf("row %d has %s = %v outside predicate %v", i, f.Column, row[idx], f.Value)
			}
		}
	}
	return nil
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func pick(row []any, idx []int) []any {
	out := make([]any, len(idx))
	for i, j := range idx {
		out[i] = row[j]
	}
	return out
}
