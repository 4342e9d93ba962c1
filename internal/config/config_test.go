package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DATA_ROOT", "DUCKDB_PATH", "DUCKLAKE_META_PATH", "DUCKLAKE_DATA_PATH",
	"BLOB_BACKEND", "BLOB_BUCKET",
	"S3_KEY_ID", "S3_SECRET", "S3_ENDPOINT", "S3_REGION", "S3_URL_STYLE",
	"GCS_KEY_FILE", "AZURE_ACCOUNT_NAME", "AZURE_ACCOUNT_KEY",
	"META_DB_PATH", "PIPELINES_FILE", "LISTEN_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	"COMPACT_AFTER_LOAD", "VACUUM_AFTER_ENSURE", "VACUUM_RETENTION", "REORDER_LEDGER",
	"RUN_PARALLELISM", "CORS_ALLOWED_ORIGINS", "API_TRIGGER_RATE", "API_TRIGGER_BURST",
	"API_JWT_SECRET", "API_OIDC_ISSUER", "API_OIDC_AUDIENCE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.DataRoot)
	assert.Equal(t, BlobBackendLocal, cfg.BlobBackend)
	assert.Equal(t, "local/lake_meta.sqlite", cfg.DuckLakeMetaPath)
	assert.Equal(t, "local/etl_meta.sqlite", cfg.MetaDBPath)
	assert.Equal(t, "pipelines.yaml", cfg.PipelinesFile)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "path", cfg.S3URLStyle)
	assert.True(t, cfg.CompactAfterLoad)
	assert.True(t, cfg.VacuumAfterEnsure)
	assert.True(t, cfg.ReorderLedger)
	assert.Zero(t, cfg.VacuumRetention)
	assert.Equal(t, 1, cfg.RunParallelism)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 1.0, cfg.TriggerRate)
	assert.Equal(t, 5, cfg.TriggerBurst)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.DuckLakeEnabled())
	assert.False(t, cfg.HasS3Config())
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_ROOT", "/data")
	t.Setenv("DUCKLAKE_DATA_PATH", "s3://lake/silver/")
	t.Setenv("BLOB_BACKEND", "S3")
	t.Setenv("BLOB_BUCKET", "bronze-bucket")
	t.Setenv("S3_KEY_ID", "testkey")
	t.Setenv("S3_SECRET", "testsecret")
	t.Setenv("S3_ENDPOINT", "s3.example.com")
	t.Setenv("S3_REGION", "eu-central-1")
	t.Setenv("COMPACT_AFTER_LOAD", "off")
	t.Setenv("VACUUM_RETENTION", "168h")
	t.Setenv("RUN_PARALLELISM", "4")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("API_TRIGGER_RATE", "0.5")
	t.Setenv("API_TRIGGER_BURST", "2")
	t.Setenv("API_JWT_SECRET", "s3cret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, BlobBackendS3, cfg.BlobBackend)
	assert.Equal(t, "bronze-bucket", cfg.BlobBucket)
	assert.True(t, cfg.HasS3Config())
	assert.True(t, cfg.DuckLakeEnabled())
	assert.Equal(t, "/data/lake_meta.sqlite", cfg.DuckLakeMetaPath)
	assert.False(t, cfg.CompactAfterLoad)
	assert.Equal(t, 168*time.Hour, cfg.VacuumRetention)
	assert.Equal(t, 4, cfg.RunParallelism)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 0.5, cfg.TriggerRate)
	assert.Equal(t, 2, cfg.TriggerBurst)
	assert.True(t, cfg.AuthEnabled())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown_backend",
			env:     map[string]string{"BLOB_BACKEND": "ftp"},
			wantErr: "unsupported BLOB_BACKEND",
		},
		{
			name:    "s3_without_bucket",
			env:     map[string]string{"BLOB_BACKEND": "s3", "S3_KEY_ID": "k", "S3_SECRET": "s"},
			wantErr: "BLOB_BUCKET is required",
		},
		{
			name:    "s3_without_credentials",
			env:     map[string]string{"BLOB_BACKEND": "s3", "BLOB_BUCKET": "b"},
			wantErr: "S3_KEY_ID and S3_SECRET",
		},
		{
			name:    "azure_without_key",
			env:     map[string]string{"BLOB_BACKEND": "azure", "BLOB_BUCKET": "c", "AZURE_ACCOUNT_NAME": "a"},
			wantErr: "AZURE_ACCOUNT_KEY",
		},
		{
			name:    "bad_retention",
			env:     map[string]string{"VACUUM_RETENTION": "a week"},
			wantErr: "VACUUM_RETENTION",
		},
		{
			name:    "negative_retention",
			env:     map[string]string{"VACUUM_RETENTION": "-1h"},
			wantErr: "must not be negative",
		},
		{
			name:    "bad_url_style",
			env:     map[string]string{"S3_URL_STYLE": "virtual"},
			wantErr: "S3_URL_STYLE",
		},
		{
			name:    "bad_trigger_rate",
			env:     map[string]string{"API_TRIGGER_RATE": "fast"},
			wantErr: "API_TRIGGER_RATE",
		},
		{
			name:    "zero_trigger_burst",
			env:     map[string]string{"API_TRIGGER_BURST": "0"},
			wantErr: "API_TRIGGER_BURST",
		},
		{
			name:    "oidc_without_audience",
			env:     map[string]string{"API_OIDC_ISSUER": "https://auth.example.com"},
			wantErr: "API_OIDC_AUDIENCE",
		},
		{
			name:    "bad_log_format",
			env:     map[string]string{"LOG_FORMAT": "xml"},
			wantErr: "LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv_Warnings(t *testing.T) {
	clearEnv(t)
	t.Setenv("RUN_PARALLELISM", "zero")
	t.Setenv("BLOB_BACKEND", "gcs")
	t.Setenv("BLOB_BUCKET", "b")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.RunParallelism)
	assert.Len(t, cfg.Warnings, 2)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "pipeline", "customers")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"pipeline":"customers"`)

	buf.Reset()
	cfg.LogFormat = "text"
	cfg.NewLogger(&buf).Warn("shown", "pipeline", "customers")
	assert.Contains(t, buf.String(), "pipeline=customers")
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	require.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("# comment\nETL_TEST_KEY=\"test_value\"\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("ETL_TEST_KEY") })

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "test_value", os.Getenv("ETL_TEST_KEY"))
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("ETL_TEST_PRECEDENCE", "from_env")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ETL_TEST_PRECEDENCE=from_file\n"), 0o644))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from_env", os.Getenv("ETL_TEST_PRECEDENCE"))
}
