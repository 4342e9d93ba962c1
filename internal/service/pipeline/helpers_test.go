package pipeline

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"

	"duck-etl/internal/domain"
	"duck-etl/internal/engine"
	"duck-etl/internal/ledger"
	"duck-etl/internal/schema"
	"duck-etl/internal/tables"
	"duck-etl/internal/testutil"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var customersModel = domain.TableModel{
	Name:        "customers",
	Description: "Customers from source.",
	Columns: []domain.Column{
		{Name: "customer_id", Type: domain.TypeVarchar, Description: "Unique customer id, provided by source."},
		{Name: "first_name", Type: domain.TypeVarchar, Nullable: true},
	},
}

// fakeSource stages Files on extract and turns "id,name" lines into one frame
// per model.
type fakeSource struct {
	mu          sync.Mutex
	Files       map[string]string
	ExtractErr  error
	TransformFn func(name string, content []byte) ([]domain.Frame, error)
	Models      int
	Transforms  []string
}

func (s *fakeSource) SetFile(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Files == nil {
		s.Files = map[string]string{}
	}
	s.Files[name] = content
}

func (s *fakeSource) Extract(ctx context.Context, stage *Stager) error {
	if s.ExtractErr != nil {
		return s.ExtractErr
	}
	s.mu.Lock()
	names := make([]string, 0, len(s.Files))
	for n := range s.Files {
		names = append(names, n)
	}
	files := make(map[string]string, len(s.Files))
	for n, c := range s.Files {
		files[n] = c
	}
	s.mu.Unlock()
	sort.Strings(names)
	for _, n := range names {
		if err := stage.Save(ctx, n, []byte(files[n])); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) Transform(_ context.Context, name string, content []byte) ([]domain.Frame, error) {
	s.mu.Lock()
	s.Transforms = append(s.Transforms, name)
	s.mu.Unlock()
	if s.TransformFn != nil {
		return s.TransformFn(name, content)
	}
	frame := csvFrame(string(content))
	n := max(s.Models, 1)
	out := make([]domain.Frame, n)
	for i := range out {
		out[i] = frame
	}
	return out, nil
}

// csvFrame parses "customer_id,first_name" lines without a header.
func csvFrame(content string) domain.Frame {
	f := domain.NewFrame("customer_id", "first_name")
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if line == "" {
			continue
		}
		id, name, _ := strings.Cut(line, ",")
		f.Append(id, name)
	}
	return f
}

// testEnv wires a Runner to an in-memory DuckDB and blob store.
type testEnv struct {
	blobs  *testutil.MemoryBlobStore
	ledger *ledger.Ledger
	tables *tables.Manager
	runner *Runner
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := discardLogger()
	eng := engine.NewDuckDBEngine(db, logger)
	env := &testEnv{
		blobs:  testutil.NewMemoryBlobStore(),
		ledger: ledger.New(eng, ledger.Options{Reorder: true}, logger),
		tables: tables.NewManager(eng, tables.Options{CompactAfterLoad: true, VacuumAfterEnsure: true}, logger),
		now:    time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	env.blobs.Now = func() time.Time { return env.now }
	require.NoError(t, env.ledger.Init(context.Background()))
	env.runner = NewRunner(env.blobs, env.ledger, env.tables, schema.NewValidator(), logger)
	return env
}

// tick advances the blob store clock, so the next upload gets a newer version.
func (e *testEnv) tick() { e.now = e.now.Add(time.Minute) }

func (e *testEnv) customerIDs(t *testing.T, fileName string) []string {
	t.Helper()
	f, err := e.tables.Scan(context.Background(), customersModel, fileName)
	require.NoError(t, err)
	ids := make([]string, 0, f.Len())
	for i := range f.Rows {
		v, _ := f.Value(i, "customer_id")
		ids = append(ids, v.(string))
	}
	sort.Strings(ids)
	return ids
}

func customersDef(src Source) Definition {
	return Definition{Name: "customers", Models: []domain.TableModel{customersModel}, Source: src}
}
