package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-etl/internal/domain"
	"duck-etl/internal/testutil"
)

// blockingSource blocks Extract until release is closed.
type blockingSource struct {
	fakeSource
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSource) Extract(ctx context.Context, stage *Stager) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.fakeSource.Extract(ctx, stage)
}

func newService(t *testing.T) (*Service, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewService(env.runner, env.ledger, discardLogger()), env
}

func TestService_RegisterAndGet(t *testing.T) {
	svc, _ := newService(t)

	require.NoError(t, svc.Register(ctx, Entry{Definition: customersDef(&fakeSource{}), Schedule: "@hourly"}))

	err := svc.Register(ctx, Entry{Definition: customersDef(&fakeSource{})})
	var conflict *domain.ConflictError
	assert.True(t, errors.As(err, &conflict))

	err = svc.Register(ctx, Entry{Definition: Definition{Name: "broken"}})
	var ce *domain.ConfigurationError
	assert.True(t, errors.As(err, &ce))

	e, err := svc.Get("customers")
	require.NoError(t, err)
	assert.Equal(t, "@hourly", e.Schedule)

	_, err = svc.Get("missing")
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func modelNamed(name string) domain.TableModel {
	m := customersModel
	m.Name = name
	return m
}

func TestService_RegisterRejectsSharedTable(t *testing.T) {
	svc, env := newService(t)
	eu := &fakeSource{}
	eu.SetFile("export.csv", "1,eu\n")
	us := &fakeSource{}
	us.SetFile("export.csv", "2,us\n")

	require.NoError(t, svc.Register(ctx, Entry{Definition: Definition{Name: "crm_eu", Models: []domain.TableModel{customersModel}, Source: eu}}))

	tests := []struct {
		name   string
		models []domain.TableModel
	}{
		{name: "same_model", models: []domain.TableModel{customersModel}},
		{name: "second_model_collides", models: []domain.TableModel{modelNamed("us_orders"), customersModel}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(ctx, Entry{Definition: Definition{Name: "crm_us", Models: tt.models, Source: us}})
			var ce *domain.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Contains(t, err.Error(), `table silver.customers is already loaded by pipeline "crm_eu"`)
			_, err = svc.Get("crm_us")
			assert.Error(t, err)
		})
	}

	// The rejected pipeline never ran, so the first pipeline's rows stay.
	_, err := svc.Trigger(ctx, "crm_eu", domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, env.customerIDs(t, "export.csv"))

	require.NoError(t, svc.Register(ctx, Entry{Definition: Definition{Name: "crm_us", Models: []domain.TableModel{modelNamed("us_customers")}, Source: us}}))
}

func TestService_ListAndSchedules(t *testing.T) {
	svc, _ := newService(t)
	for _, e := range []Entry{
		{Definition: Definition{Name: "zeta", Models: []domain.TableModel{modelNamed("zeta_customers")}, Source: &fakeSource{}}, Schedule: "@daily"},
		{Definition: Definition{Name: "alpha", Models: []domain.TableModel{modelNamed("alpha_customers")}, Source: &fakeSource{}}},
		{Definition: Definition{Name: "paused", Models: []domain.TableModel{modelNamed("paused_customers")}, Source: &fakeSource{}}, Schedule: "@daily", Paused: true},
	} {
		require.NoError(t, svc.Register(ctx, e))
	}

	var names []string
	for _, e := range svc.List() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"alpha", "paused", "zeta"}, names)

	scheduled, err := svc.Schedules(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "zeta", scheduled[0].Name())
}

func TestService_TriggerUnknown(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Trigger(ctx, "missing", domain.TriggerTypeManual)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestService_TriggerRefusesConcurrentRun(t *testing.T) {
	svc, _ := newService(t)
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	src.SetFile("a.csv", "1,x\n")
	require.NoError(t, svc.Register(ctx, Entry{Definition: customersDef(src)}))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Trigger(ctx, "customers", domain.TriggerTypeManual)
		done <- err
	}()
	<-src.started
	assert.True(t, svc.Running("customers"))

	_, err := svc.Trigger(ctx, "customers", domain.TriggerTypeManual)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	close(src.release)
	require.NoError(t, <-done)
	assert.False(t, svc.Running("customers"))

	// The guard is released after the run.
	res, err := svc.Trigger(ctx, "customers", domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesSkipped)
}

func TestService_RunAll(t *testing.T) {
	svc, env := newService(t)
	good := &fakeSource{}
	good.SetFile("a.csv", "1,x\n")
	bad := &fakeSource{ExtractErr: errors.New("offline")}

	require.NoError(t, svc.Register(ctx, Entry{Definition: customersDef(good)}))
	require.NoError(t, svc.Register(ctx, Entry{Definition: Definition{
		Name:   "orders",
		Models: []domain.TableModel{{Name: "orders", Columns: []domain.Column{{Name: "order_id", Type: domain.TypeBigint}}}},
		Source: bad,
	}}))

	results, err := svc.RunAll(ctx, nil, domain.TriggerTypeManual, 2)
	var ee *domain.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "orders", ee.Pipeline)

	require.Contains(t, results, "customers")
	assert.NotContains(t, results, "orders")
	assert.Equal(t, 1, results["customers"].FilesProcessed)
	assert.Equal(t, []string{"1"}, env.customerIDs(t, "a.csv"))

	results, err = svc.RunAll(ctx, []string{"customers"}, domain.TriggerTypeManual, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, results["customers"].FilesSkipped)
}

func TestService_LedgerAndRuns(t *testing.T) {
	svc, _ := newService(t)
	src := &fakeSource{}
	src.SetFile("a.csv", "1,x\n")
	require.NoError(t, svc.Register(ctx, Entry{Definition: customersDef(src)}))

	// Without history the run list is empty.
	runs, err := svc.ListRuns(ctx, "customers", domain.PipelineRunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	var gotFilter domain.PipelineRunFilter
	svc.SetRunRepository(&testutil.MockPipelineRunRepo{
		CreateRunFn: func(_ context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) { return run, nil },
		FinishRunFn: func(context.Context, string, string, domain.RunCounts, *string) error { return nil },
		ListRunsFn: func(_ context.Context, f domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
			gotFilter = f
			return []domain.PipelineRun{{ID: "r1", PipelineName: "customers"}}, nil
		},
		GetRunFn: func(_ context.Context, id string) (*domain.PipelineRun, error) {
			return nil, domain.ErrNotFound("run %q not found", id)
		},
	})

	_, err = svc.Trigger(ctx, "customers", domain.TriggerTypeManual)
	require.NoError(t, err)

	recs, err := svc.Ledger(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a.csv", recs[0].FileName)
	assert.WithinDuration(t, time.Now(), recs[0].ProcessedAt, time.Minute)

	runs, err = svc.ListRuns(ctx, "customers", domain.PipelineRunFilter{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, domain.PipelineRunFilter{PipelineName: "customers", Limit: 5}, gotFilter)

	_, err = svc.GetRun(ctx, "nope")
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = svc.Ledger(ctx, "missing")
	assert.True(t, errors.As(err, &nf))
	_, err = svc.ListRuns(ctx, "missing", domain.PipelineRunFilter{})
	assert.True(t, errors.As(err, &nf))
}
