// Package engine binds the storage-engine capability interface to DuckDB,
// optionally with a DuckLake catalog attached for partitioned, snapshotted
// silver tables.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	"duck-etl/internal/ddl"
)

// DefaultLakeCatalog is the catalog name used when DuckLake is attached.
const DefaultLakeCatalog = "lake"

// InstallExtensions installs and loads DuckDB extensions needed for DuckLake.
// Safe to call without credentials; it only makes the extensions available.
func InstallExtensions(ctx context.Context, db *sql.DB) error {
	extensions := []string{
		"INSTALL ducklake; LOAD ducklake;",
		"INSTALL sqlite; LOAD sqlite;",
		"INSTALL httpfs; LOAD httpfs;",
	}
	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("extension setup (%s): %w", ext, err)
		}
	}
	return nil
}

// CreateS3Secret creates a named DuckDB secret for S3-compatible storage.
func CreateS3Secret(ctx context.Context, db *sql.DB, name, keyID, secret, endpoint, region, urlStyle string) error {
	stmt, err := ddl.CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create S3 secret %q: %w", name, err)
	}
	return nil
}

// CreateAzureSecret creates a named DuckDB secret for Azure Blob Storage.
func CreateAzureSecret(ctx context.Context, db *sql.DB, name, accountName, accountKey string) error {
	stmt, err := ddl.CreateAzureSecret(name, accountName, accountKey)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create Azure secret %q: %w", name, err)
	}
	return nil
}

// CreateGCSSecret creates a named DuckDB secret for Google Cloud Storage.
func CreateGCSSecret(ctx context.Context, db *sql.DB, name, keyFilePath string) error {
	stmt, err := ddl.CreateGCSSecret(name, keyFilePath)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create GCS secret %q: %w", name, err)
	}
	return nil
}

// AttachDuckLake attaches a DuckLake catalog with the given SQLite metastore
// and data path. Tables are addressed with the catalog name explicitly, so the
// connection's default catalog is left alone.
func AttachDuckLake(ctx context.Context, db *sql.DB, catalog, metaDBPath, dataPath string) error {
	stmt, err := ddl.AttachDuckLake(catalog, metaDBPath, dataPath)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("attach ducklake: %w", err)
	}
	return nil
}

// IsCatalogAttached reports whether a catalog with the given name is attached.
func IsCatalogAttached(ctx context.Context, db *sql.DB, catalog string) bool {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT count(*) FROM duckdb_databases() WHERE database_name = ?", catalog).Scan(&n)
	return err == nil && n > 0
}
