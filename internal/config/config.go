// Package config handles application configuration and environment loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Blob backends.
const (
	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"
	BlobBackendGCS   = "gcs"
	BlobBackendAzure = "azure"
)

// Config holds the configuration of the orchestrator, its storage and its
// control plane.
type Config struct {
	DataRoot         string // local root for bronze files and the default DuckDB file (default "local")
	DuckDBPath       string // DuckDB database file; empty means <DataRoot>/silver.duckdb
	DuckLakeMetaPath string // SQLite metastore for DuckLake (default <DataRoot>/lake_meta.sqlite)
	DuckLakeDataPath string // DuckLake data path; DuckLake is attached only when set

	BlobBackend string // local, s3, gcs or azure (default local)
	BlobBucket  string // bucket or container for cloud backends

	// S3 settings, shared by the S3 blob store and the DuckDB secret.
	S3KeyID    string
	S3Secret   string
	S3Endpoint string
	S3Region   string
	S3URLStyle string // path (default) or vhost

	GCSKeyFile string

	AzureAccountName string
	AzureAccountKey  string

	MetaDBPath    string // SQLite run history (default <DataRoot>/etl_meta.sqlite)
	PipelinesFile string // pipeline YAML (default pipelines.yaml)
	ListenAddr    string // HTTP listen address (default ":8080")
	LogLevel      string // debug, info, warn, error (default "info")
	LogFormat     string // json (default) or text

	// Maintenance.
	CompactAfterLoad  bool          // default true
	VacuumAfterEnsure bool          // default true
	VacuumRetention   time.Duration // default 0
	ReorderLedger     bool          // default true

	RunParallelism int // pipelines run concurrently by run-all (default 1)

	// API.
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])
	TriggerRate        float64  // manual run triggers per second accepted by the API (default 1)
	TriggerBurst       int      // trigger burst size (default 5)

	// API auth. With neither set the API is open.
	JWTSecret    string // HS256 shared secret
	OIDCIssuer   string // OIDC issuer URL; takes precedence over JWTSecret
	OIDCAudience string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasS3Config returns true if S3 credentials are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != "" && c.S3Secret != ""
}

// AuthEnabled reports whether the API requires bearer tokens.
func (c *Config) AuthEnabled() bool {
	return c.OIDCIssuer != "" || c.JWTSecret != ""
}

// DuckLakeEnabled reports whether a DuckLake catalog should be attached.
func (c *Config) DuckLakeEnabled() bool {
	return c.DuckLakeDataPath != ""
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DataRoot:          os.Getenv("DATA_ROOT"),
		DuckDBPath:        os.Getenv("DUCKDB_PATH"),
		DuckLakeMetaPath:  os.Getenv("DUCKLAKE_META_PATH"),
		DuckLakeDataPath:  os.Getenv("DUCKLAKE_DATA_PATH"),
		BlobBackend:       strings.ToLower(strings.TrimSpace(os.Getenv("BLOB_BACKEND"))),
		BlobBucket:        os.Getenv("BLOB_BUCKET"),
		S3KeyID:           os.Getenv("S3_KEY_ID"),
		S3Secret:          os.Getenv("S3_SECRET"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          os.Getenv("S3_REGION"),
		S3URLStyle:        os.Getenv("S3_URL_STYLE"),
		GCSKeyFile:        os.Getenv("GCS_KEY_FILE"),
		AzureAccountName:  os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:   os.Getenv("AZURE_ACCOUNT_KEY"),
		MetaDBPath:        os.Getenv("META_DB_PATH"),
		PipelinesFile:     os.Getenv("PIPELINES_FILE"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		LogFormat:         strings.ToLower(os.Getenv("LOG_FORMAT")),
		CompactAfterLoad:  parseBoolEnvDefault("COMPACT_AFTER_LOAD", true),
		VacuumAfterEnsure: parseBoolEnvDefault("VACUUM_AFTER_ENSURE", true),
		ReorderLedger:     parseBoolEnvDefault("REORDER_LEDGER", true),
		JWTSecret:         os.Getenv("API_JWT_SECRET"),
		OIDCIssuer:        os.Getenv("API_OIDC_ISSUER"),
		OIDCAudience:      os.Getenv("API_OIDC_AUDIENCE"),
	}

	if v := os.Getenv("VACUUM_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("VACUUM_RETENTION: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("VACUUM_RETENTION must not be negative")
		}
		cfg.VacuumRetention = d
	}
	if v := os.Getenv("RUN_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RUN_PARALLELISM %q", v))
		} else {
			cfg.RunParallelism = n
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}
	if v := os.Getenv("API_TRIGGER_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("API_TRIGGER_RATE must be a positive number, got %q", v)
		}
		cfg.TriggerRate = f
	}
	if v := os.Getenv("API_TRIGGER_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("API_TRIGGER_BURST must be a positive integer, got %q", v)
		}
		cfg.TriggerBurst = n
	}

	// Defaults
	if cfg.DataRoot == "" {
		cfg.DataRoot = "local"
	}
	if cfg.DuckLakeMetaPath == "" {
		cfg.DuckLakeMetaPath = cfg.DataRoot + "/lake_meta.sqlite"
	}
	if cfg.BlobBackend == "" {
		cfg.BlobBackend = BlobBackendLocal
	}
	if cfg.S3URLStyle == "" {
		cfg.S3URLStyle = "path"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = cfg.DataRoot + "/etl_meta.sqlite"
	}
	if cfg.PipelinesFile == "" {
		cfg.PipelinesFile = "pipelines.yaml"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.RunParallelism == 0 {
		cfg.RunParallelism = 1
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.TriggerRate == 0 {
		cfg.TriggerRate = 1
	}
	if cfg.TriggerBurst == 0 {
		cfg.TriggerBurst = 5
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.BlobBackend {
	case BlobBackendLocal:
	case BlobBackendS3:
		if c.BlobBucket == "" {
			return fmt.Errorf("BLOB_BUCKET is required for BLOB_BACKEND=s3")
		}
		if !c.HasS3Config() {
			return fmt.Errorf("S3_KEY_ID and S3_SECRET are required for BLOB_BACKEND=s3")
		}
	case BlobBackendGCS:
		if c.BlobBucket == "" {
			return fmt.Errorf("BLOB_BUCKET is required for BLOB_BACKEND=gcs")
		}
		if c.GCSKeyFile == "" {
			c.Warnings = append(c.Warnings, "GCS_KEY_FILE not set, using application default credentials")
		}
	case BlobBackendAzure:
		if c.BlobBucket == "" {
			return fmt.Errorf("BLOB_BUCKET is required for BLOB_BACKEND=azure")
		}
		if c.AzureAccountName == "" || c.AzureAccountKey == "" {
			return fmt.Errorf("AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY are required for BLOB_BACKEND=azure")
		}
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q (want local, s3, gcs or azure)", c.BlobBackend)
	}
	if c.S3URLStyle != "path" && c.S3URLStyle != "vhost" {
		return fmt.Errorf("S3_URL_STYLE must be path or vhost, got %q", c.S3URLStyle)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.OIDCIssuer != "" && c.OIDCAudience == "" {
		return fmt.Errorf("API_OIDC_AUDIENCE is required with API_OIDC_ISSUER")
	}
	if c.OIDCIssuer != "" && c.JWTSecret != "" {
		c.Warnings = append(c.Warnings, "API_OIDC_ISSUER is set, ignoring API_JWT_SECRET")
	}
	if strings.HasPrefix(c.DuckLakeDataPath, "s3://") && !c.HasS3Config() {
		c.Warnings = append(c.Warnings, "DUCKLAKE_DATA_PATH is on S3 but S3_KEY_ID/S3_SECRET are not set")
	}
	return nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
