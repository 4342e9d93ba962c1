package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"duck-etl/internal/config"
	"duck-etl/internal/engine"
)

// DuckDBPath returns the silver DuckDB file: DUCKDB_PATH, or silver.duckdb
// under DATA_ROOT.
func DuckDBPath(cfg *config.Config) string {
	if cfg.DuckDBPath != "" {
		return cfg.DuckDBPath
	}
	return filepath.Join(cfg.DataRoot, "silver.duckdb")
}

// OpenDuckDB opens the silver database. When DuckLake is configured the lake
// catalog is attached, after creating the DuckDB secrets for whichever cloud
// credentials are set, and its name is returned.
func OpenDuckDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, string, error) {
	path := DuckDBPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, "", fmt.Errorf("create duckdb dir: %w", err)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, "", fmt.Errorf("open duckdb: %w", err)
	}
	if !cfg.DuckLakeEnabled() {
		logger.Info("using native duckdb tables", "path", path)
		return db, "", nil
	}

	if err := setupDuckLake(ctx, db, cfg); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	logger.Info("ducklake attached",
		"catalog", engine.DefaultLakeCatalog,
		"metastore", cfg.DuckLakeMetaPath,
		"data_path", cfg.DuckLakeDataPath,
	)
	return db, engine.DefaultLakeCatalog, nil
}

func setupDuckLake(ctx context.Context, db *sql.DB, cfg *config.Config) error {
	if err := engine.InstallExtensions(ctx, db); err != nil {
		return err
	}
	if cfg.HasS3Config() {
		endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.S3Endpoint, "https://"), "http://")
		if err := engine.CreateS3Secret(ctx, db, "etl_s3", cfg.S3KeyID, cfg.S3Secret, endpoint, cfg.S3Region, cfg.S3URLStyle); err != nil {
			return err
		}
	}
	if cfg.AzureAccountName != "" && cfg.AzureAccountKey != "" {
		if err := engine.CreateAzureSecret(ctx, db, "etl_azure", cfg.AzureAccountName, cfg.AzureAccountKey); err != nil {
			return err
		}
	}
	if cfg.GCSKeyFile != "" {
		if err := engine.CreateGCSSecret(ctx, db, "etl_gcs", cfg.GCSKeyFile); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DuckLakeMetaPath), 0o750); err != nil {
		return fmt.Errorf("create metastore dir: %w", err)
	}
	if !engine.IsCatalogAttached(ctx, db, engine.DefaultLakeCatalog) {
		if err := engine.AttachDuckLake(ctx, db, engine.DefaultLakeCatalog, cfg.DuckLakeMetaPath, cfg.DuckLakeDataPath); err != nil {
			return err
		}
	}
	return nil
}
