// Package ddl builds DuckDB statements for tables, DuckLake attachment, secrets
// and maintenance. Identifiers are validated and quoted; values are passed as
// placeholders or quoted literals.
package ddl

import (
	"fmt"
	"strings"
	"time"
)

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name    string
	Type    string
	NotNull bool
}

// TableRef is a possibly catalog-qualified table name. An empty Catalog means
// the connection's default catalog.
type TableRef struct {
	Catalog string
	Schema  string
	Table   string
}

// Validate checks every identifier of the reference.
func (r TableRef) Validate() error {
	if r.Catalog != "" {
		if err := ValidateIdentifier(r.Catalog); err != nil {
			return fmt.Errorf("invalid catalog name: %w", err)
		}
	}
	if err := ValidateIdentifier(r.Schema); err != nil {
		return fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(r.Table); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}
	return nil
}

// Quoted renders the reference as "catalog"."schema"."table".
func (r TableRef) Quoted() string {
	parts := make([]string, 0, 3)
	if r.Catalog != "" {
		parts = append(parts, QuoteIdentifier(r.Catalog))
	}
	parts = append(parts, QuoteIdentifier(r.Schema), QuoteIdentifier(r.Table))
	return strings.Join(parts, ".")
}

// CreateSchema returns: CREATE SCHEMA IF NOT EXISTS [<catalog>.]"<name>".
func CreateSchema(catalog, name string) (string, error) {
	if catalog != "" {
		if err := ValidateIdentifier(catalog); err != nil {
			return "", fmt.Errorf("invalid catalog name: %w", err)
		}
	}
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	target := QuoteIdentifier(name)
	if catalog != "" {
		target = QuoteIdentifier(catalog) + "." + target
	}
	return "CREATE SCHEMA IF NOT EXISTS " + target, nil
}

// CreateTable returns a DuckDB DDL statement:
// CREATE TABLE <ref> ("<col1>" TYPE1 [NOT NULL], ...).
func CreateTable(ref TableRef, columns []ColumnDef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	colDefs := make([]string, 0, len(columns))
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		def := fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), c.Type)
		if c.NotNull {
			def += " NOT NULL"
		}
		colDefs = append(colDefs, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", ref.Quoted(), strings.Join(colDefs, ", ")), nil
}

// CommentOnTable returns: COMMENT ON TABLE <ref> IS '<comment>'.
func CommentOnTable(ref TableRef, comment string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("COMMENT ON TABLE %s IS %s", ref.Quoted(), QuoteLiteral(comment)), nil
}

// CommentOnColumn returns: COMMENT ON COLUMN <ref>."<column>" IS '<comment>'.
func CommentOnColumn(ref TableRef, column, comment string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid column name %q: %w", column, err)
	}
	return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s",
		ref.Quoted(), QuoteIdentifier(column), QuoteLiteral(comment)), nil
}

// SetPartitionedBy returns the DuckLake statement:
// ALTER TABLE <ref> SET PARTITIONED BY ("<col>", ...).
func SetPartitionedBy(ref TableRef, columns []string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	cols, err := quoteColumns(columns)
	if err != nil {
		return "", err
	}
	if cols == "" {
		return "", fmt.Errorf("at least one partition column is required")
	}
	return fmt.Sprintf("ALTER TABLE %s SET PARTITIONED BY (%s)", ref.Quoted(), cols), nil
}

// DeleteWhere returns: DELETE FROM <ref> WHERE "<a>" = ? AND ...
// With no columns every row is deleted.
func DeleteWhere(ref TableRef, columns []string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	where, err := whereClause(columns)
	if err != nil {
		return "", err
	}
	return "DELETE FROM " + ref.Quoted() + where, nil
}

// InsertValues returns a multi-row INSERT with one placeholder per value:
// INSERT INTO <ref> ("<a>", "<b>") VALUES (?, ?), (?, ?).
func InsertValues(ref TableRef, columns []string, rows int) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	cols, err := quoteColumns(columns)
	if err != nil {
		return "", err
	}
	if cols == "" {
		return "", fmt.Errorf("at least one column is required")
	}
	if rows <= 0 {
		return "", fmt.Errorf("at least one row is required")
	}

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	tuples := make([]string, rows)
	for i := range tuples {
		tuples[i] = tuple
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", ref.Quoted(), cols, strings.Join(tuples, ", ")), nil
}

// UpdateWhere returns: UPDATE <ref> SET "<s1>" = ?, ... WHERE "<m1>" = ? AND ...
// Placeholders are ordered set columns first, then match columns.
func UpdateWhere(ref TableRef, setColumns, matchColumns []string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if len(setColumns) == 0 {
		return "", fmt.Errorf("at least one column to set is required")
	}
	if len(matchColumns) == 0 {
		return "", fmt.Errorf("at least one match column is required")
	}
	sets := make([]string, len(setColumns))
	for i, c := range setColumns {
		if err := ValidateIdentifier(c); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c, err)
		}
		sets[i] = QuoteIdentifier(c) + " = ?"
	}
	where, err := whereClause(matchColumns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s%s", ref.Quoted(), strings.Join(sets, ", "), where), nil
}

// Select returns: SELECT <cols|*> FROM <ref> WHERE "<f>" = ? ... [ORDER BY ...].
func Select(ref TableRef, columns, filterColumns, orderBy []string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	cols, err := quoteColumns(columns)
	if err != nil {
		return "", err
	}
	if cols == "" {
		cols = "*"
	}
	where, err := whereClause(filterColumns)
	if err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s%s", cols, ref.Quoted(), where)
	if len(orderBy) > 0 {
		order, err := quoteColumns(orderBy)
		if err != nil {
			return "", err
		}
		stmt += " ORDER BY " + order
	}
	return stmt, nil
}

// CreateTempSortedCopy returns:
// CREATE OR REPLACE TEMP TABLE "<tmp>" AS SELECT * FROM <ref> ORDER BY ...
func CreateTempSortedCopy(tmp string, ref TableRef, orderBy []string) (string, error) {
	if err := ValidateIdentifier(tmp); err != nil {
		return "", fmt.Errorf("invalid temp table name: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return "", err
	}
	order, err := quoteColumns(orderBy)
	if err != nil {
		return "", err
	}
	if order == "" {
		return "", fmt.Errorf("at least one sort column is required")
	}
	return fmt.Sprintf("CREATE OR REPLACE TEMP TABLE %s AS SELECT * FROM %s ORDER BY %s",
		QuoteIdentifier(tmp), ref.Quoted(), order), nil
}

// InsertFromTemp returns: INSERT INTO <ref> SELECT * FROM "<tmp>".
func InsertFromTemp(ref TableRef, tmp string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(tmp); err != nil {
		return "", fmt.Errorf("invalid temp table name: %w", err)
	}
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", ref.Quoted(), QuoteIdentifier(tmp)), nil
}

// DropTempTable returns: DROP TABLE IF EXISTS temp."<tmp>".
func DropTempTable(tmp string) (string, error) {
	if err := ValidateIdentifier(tmp); err != nil {
		return "", fmt.Errorf("invalid temp table name: %w", err)
	}
	return "DROP TABLE IF EXISTS temp." + QuoteIdentifier(tmp), nil
}

// CreateS3Secret returns a DuckDB DDL statement to create an S3 secret.
func CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf(`CREATE OR REPLACE SECRET %s (
	TYPE S3,
	KEY_ID %s,
	SECRET %s,
	ENDPOINT %s,
	REGION %s,
	URL_STYLE %s
)`,
		QuoteIdentifier(name),
		QuoteLiteral(keyID),
		QuoteLiteral(secret),
		QuoteLiteral(endpoint),
		QuoteLiteral(region),
		QuoteLiteral(urlStyle),
	), nil
}

// CreateAzureSecret returns a DuckDB DDL statement to create an Azure secret.
func CreateAzureSecret(name, accountName, accountKey string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf(`CREATE OR REPLACE SECRET %s (
	TYPE AZURE,
	ACCOUNT_NAME %s,
	ACCOUNT_KEY %s
)`,
		QuoteIdentifier(name),
		QuoteLiteral(accountName),
		QuoteLiteral(accountKey),
	), nil
}

// CreateGCSSecret returns a DuckDB DDL statement to create a GCS secret.
func CreateGCSSecret(name, keyFilePath string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf(`CREATE OR REPLACE SECRET %s (
	TYPE GCS,
	KEY_FILE_PATH %s
)`,
		QuoteIdentifier(name),
		QuoteLiteral(keyFilePath),
	), nil
}

// AttachDuckLake returns a DuckDB DDL statement to attach a DuckLake catalog
// backed by a SQLite metastore.
func AttachDuckLake(catalogName, metaDBPath, dataPath string) (string, error) {
	if err := ValidateIdentifier(catalogName); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if metaDBPath == "" {
		return "", fmt.Errorf("metastore path is required")
	}
	if dataPath == "" {
		return "", fmt.Errorf("data path is required")
	}
	connStr := QuoteLiteral("ducklake:sqlite:" + metaDBPath)
	return fmt.Sprintf("ATTACH IF NOT EXISTS %s AS %s (\n\tDATA_PATH %s\n)",
		connStr,
		QuoteIdentifier(catalogName),
		QuoteLiteral(dataPath),
	), nil
}

// MergeAdjacentFiles returns the DuckLake compaction call for a catalog.
func MergeAdjacentFiles(catalogName string) (string, error) {
	if err := ValidateIdentifier(catalogName); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	return fmt.Sprintf("CALL ducklake_merge_adjacent_files(%s)", QuoteLiteral(catalogName)), nil
}

// ExpireSnapshots returns the DuckLake call expiring snapshots older than
// retention. A zero retention expires everything but the current snapshot.
func ExpireSnapshots(catalogName string, retention time.Duration) (string, error) {
	if err := ValidateIdentifier(catalogName); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if retention < 0 {
		return "", fmt.Errorf("retention must not be negative")
	}
	return fmt.Sprintf("CALL ducklake_expire_snapshots(%s, older_than => now() - INTERVAL '%d seconds')",
		QuoteLiteral(catalogName), int64(retention/time.Second)), nil
}

// CleanupOldFiles returns the DuckLake call deleting files of expired snapshots.
func CleanupOldFiles(catalogName string) (string, error) {
	if err := ValidateIdentifier(catalogName); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	return fmt.Sprintf("CALL ducklake_cleanup_old_files(%s, cleanup_all => true)", QuoteLiteral(catalogName)), nil
}

func quoteColumns(columns []string) (string, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if err := ValidateIdentifier(c); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c, err)
		}
		quoted[i] = QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", "), nil
}

func whereClause(columns []string) (string, error) {
	if len(columns) == 0 {
		return "", nil
	}
	conds := make([]string, len(columns))
	for i, c := range columns {
		if err := ValidateIdentifier(c); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c, err)
		}
		conds[i] = QuoteIdentifier(c) + " = ?"
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}
