package app

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-etl/internal/blobstore"
	"duck-etl/internal/config"
	internaldb "duck-etl/internal/db"
	"duck-etl/internal/domain"
)

const customersCSV = `Customer Id,First Name,Last Name,Subscription Date
DD37Cf93aecA6Dc,Sheryl,Baxter,2020-08-24
1Ef7b82A4CAAD10,Preston,Lozano,2021-04-23
`

func testDeps(t *testing.T) Deps {
	t.Helper()
	duck, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = duck.Close() })
	writeDB, _ := internaldb.OpenTestSQLite(t)

	return Deps{
		Cfg:     &config.Config{ReorderLedger: true, CompactAfterLoad: true, VacuumAfterEnsure: true},
		DuckDB:  duck,
		WriteDB: writeDB,
		Blobs:   blobstore.NewLocalStore(t.TempDir()),
		Logger:  slog.New(slog.DiscardHandler),
	}
}

func TestNew_RunsConfiguredPipeline(t *testing.T) {
	ctx := context.Background()
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "customers.csv"), []byte(customersCSV), 0o600))

	a, err := New(ctx, testDeps(t), []config.PipelineConfig{
		{Name: "customers", Kind: "customers", InputDir: input, Schedule: "@hourly"},
	})
	require.NoError(t, err)

	res, err := a.Service.Trigger(ctx, "customers", domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers.csv"}, res.Processed)
	assert.NotEmpty(t, res.RunID)

	runs, err := a.Service.ListRuns(ctx, "customers", domain.PipelineRunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.PipelineRunStatusSuccess, runs[0].Status)
	assert.Equal(t, 1, runs[0].FilesProcessed)

	files, err := a.Service.Ledger(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "customers.csv", files[0].FileName)

	require.NoError(t, a.Scheduler.Start(ctx))
	assert.Equal(t, []string{"customers"}, a.Scheduler.Scheduled())
	a.Scheduler.Stop()
}

func TestNew_WithoutRunHistory(t *testing.T) {
	ctx := context.Background()
	deps := testDeps(t)
	deps.WriteDB = nil

	a, err := New(ctx, deps, nil)
	require.NoError(t, err)
	runs, err := a.Service.ListRuns(ctx, "customers", domain.PipelineRunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNew_RejectsBadPipelineConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfgs    []config.PipelineConfig
		wantErr string
	}{
		{
			name:    "unknown_kind",
			cfgs:    []config.PipelineConfig{{Name: "orders", Kind: "orders"}},
			wantErr: "unknown kind",
		},
		{
			name: "duplicate",
			cfgs: []config.PipelineConfig{
				{Name: "customers", Kind: "customers", InputDir: "in"},
				{Name: "customers", Kind: "customers", InputDir: "in"},
			},
			wantErr: "already registered",
		},
		{
			name: "shared_table",
			cfgs: []config.PipelineConfig{
				{Name: "crm_eu", Kind: "customers", InputDir: "eu"},
				{Name: "crm_us", Kind: "customers", InputDir: "us"},
			},
			wantErr: `table silver.customers is already loaded by pipeline "crm_eu"`,
		},
		{
			name:    "bad_name",
			cfgs:    []config.PipelineConfig{{Name: "crm-customers", Kind: "customers", InputDir: "in"}},
			wantErr: "pipeline name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), testDeps(t), tt.cfgs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpenDuckDB_Native(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{DataRoot: filepath.Join(root, "data")}

	db, catalog, err := OpenDuckDB(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	assert.Empty(t, catalog)
	require.NoError(t, db.Ping())
	assert.FileExists(t, filepath.Join(root, "data", "silver.duckdb"))
}

func TestDuckDBPath(t *testing.T) {
	assert.Equal(t, filepath.Join("local", "silver.duckdb"), DuckDBPath(&config.Config{DataRoot: "local"}))
	assert.Equal(t, "/tmp/x.duckdb", DuckDBPath(&config.Config{DataRoot: "local", DuckDBPath: "/tmp/x.duckdb"}))
}
