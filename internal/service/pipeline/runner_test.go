package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-etl/internal/domain"
	"duck-etl/internal/testutil"
)

var ctx = context.Background()

func TestRunner_CustomersScenario(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{}
	src.SetFile("customers.csv", "DD37Cf93aecA6Dc,Sheryl\n1Ef7b82A4CAAD10,Preston\n6F94879bDAfE5a6,Roy\n")
	def := customersDef(src)
	v1 := env.now

	// v1: three rows loaded, ledger at v1.
	res, err := env.runner.Run(ctx, def, domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCounts{FilesSeen: 1, FilesProcessed: 1}, res.RunCounts)
	assert.Equal(t, []string{"customers.csv"}, res.Processed)
	assert.Equal(t, []string{"1Ef7b82A4CAAD10", "6F94879bDAfE5a6", "DD37Cf93aecA6Dc"}, env.customerIDs(t, "customers.csv"))

	recs, err := env.ledger.List(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, v1, recs[0].FileVersion)
	firstProcessed := recs[0].ProcessedAt

	// Same file again: nothing is uploaded, transformed, loaded or recorded.
	env.tick()
	res, err = env.runner.Run(ctx, def, domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCounts{FilesSeen: 1, FilesSkipped: 1}, res.RunCounts)
	assert.Empty(t, res.Processed)
	assert.Equal(t, 1, env.blobs.Uploads)
	assert.Equal(t, []string{"customers.csv"}, src.Transforms)

	unchanged, err := env.ledger.List(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, recs, unchanged)

	// v2: five rows, one customer replaced.
	src.SetFile("customers.csv", "DD37Cf93aecA6Dc,Sheryl\n1Ef7b82A4CAAD10,Preston\nXXXXXXXXXXXXXXX,Roy\nA,Linda\nB,Joanna\n")
	res, err = env.runner.Run(ctx, def, domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCounts{FilesSeen: 1, FilesProcessed: 1}, res.RunCounts)
	assert.Equal(t, []string{"1Ef7b82A4CAAD10", "A", "B", "DD37Cf93aecA6Dc", "XXXXXXXXXXXXXXX"}, env.customerIDs(t, "customers.csv"))
	assert.Equal(t, env.customerIDs(t, "customers.csv"), env.customerIDs(t, ""))

	recs, err = env.ledger.List(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, env.now, recs[0].FileVersion)
	assert.True(t, recs[0].FileVersion.After(v1))
	assert.False(t, recs[0].ProcessedAt.Before(firstProcessed))
}

func TestRunner_Isolation(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{}
	src.SetFile("a.csv", "1,a\n2,a\n")
	src.SetFile("b.csv", "3,b\n")
	def := customersDef(src)

	_, err := env.runner.Run(ctx, def, domain.TriggerTypeManual)
	require.NoError(t, err)

	env.tick()
	src.SetFile("a.csv", "4,a\n")
	res, err := env.runner.Run(ctx, def, domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, res.Processed)
	assert.Equal(t, 1, res.FilesSkipped)

	assert.Equal(t, []string{"4"}, env.customerIDs(t, "a.csv"))
	assert.Equal(t, []string{"3"}, env.customerIDs(t, "b.csv"))
}

func TestRunner_MonotonicSkip(t *testing.T) {
	tests := []struct {
		name        string
		shift       time.Duration
		wantProcess bool
	}{
		{name: "older_version_skipped", shift: -time.Hour},
		{name: "equal_version_skipped", shift: 0},
		{name: "sub_microsecond_change_skipped", shift: 500 * time.Nanosecond},
		{name: "newer_version_processed", shift: time.Microsecond, wantProcess: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			src := &fakeSource{}
			src.SetFile("f.csv", "1,x\n")
			def := customersDef(src)

			_, err := env.runner.Run(ctx, def, domain.TriggerTypeManual)
			require.NoError(t, err)
			stored, found, err := env.ledger.Get(ctx, "customers", "f.csv")
			require.NoError(t, err)
			require.True(t, found)

			env.blobs.SetVersion("customers", "f.csv", stored.Add(tt.shift))
			res, err := env.runner.Run(ctx, def, domain.TriggerTypeManual)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProcess, res.FilesProcessed == 1)

			got, _, err := env.ledger.Get(ctx, "customers", "f.csv")
			require.NoError(t, err)
			if tt.wantProcess {
				assert.Equal(t, stored.Add(tt.shift), got)
			} else {
				assert.Equal(t, stored, got)
			}
		})
	}
}

func TestRunner_ValidationFailureHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	orders := domain.TableModel{
		Name:    "orders",
		Columns: []domain.Column{{Name: "order_id", Type: domain.TypeBigint}},
	}
	src := &fakeSource{
		TransformFn: func(_ string, content []byte) ([]domain.Frame, error) {
			// The second frame lacks order_id.
			return []domain.Frame{csvFrame(string(content)), csvFrame(string(content))}, nil
		},
	}
	src.SetFile("f.csv", "1,x\n")
	def := Definition{Name: "shop", Models: []domain.TableModel{customersModel, orders}, Source: src}

	res, err := env.runner.Run(ctx, def, domain.TriggerTypeManual)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "orders", ve.Model)
	assert.Equal(t, 1, res.FilesSeen)
	assert.Zero(t, res.FilesProcessed)

	assert.Empty(t, env.customerIDs(t, ""), "first model was not written")
	_, found, err := env.ledger.Get(ctx, "shop", "f.csv")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunner_FrameCountMismatch(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{Models: 2}
	src.SetFile("f.csv", "1,x\n")

	_, err := env.runner.Run(ctx, customersDef(src), domain.TriggerTypeManual)
	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, err.Error(), "2 frames for 1 models")
	assert.Empty(t, env.customerIDs(t, ""))
}

func TestRunner_ExtractFailureAbortsBeforeTables(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("source offline")
	src := &fakeSource{ExtractErr: boom}

	_, err := env.runner.Run(ctx, customersDef(src), domain.TriggerTypeManual)
	var ee *domain.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "customers", ee.Pipeline)
	assert.ErrorIs(t, err, boom)

	_, err = env.tables.Scan(ctx, customersModel, "")
	var se *domain.StorageError
	assert.True(t, errors.As(err, &se), "table was not created")
}

func TestRunner_TransformFailure(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{
		TransformFn: func(string, []byte) ([]domain.Frame, error) { return nil, errors.New("bad csv") },
	}
	src.SetFile("a.csv", "1,x\n")

	_, err := env.runner.Run(ctx, customersDef(src), domain.TriggerTypeManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file a.csv: transform: bad csv")
}

func TestRunner_InvalidDefinition(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{}
	_, err := env.runner.Run(ctx, Definition{Name: "bad name", Models: []domain.TableModel{customersModel}, Source: src}, domain.TriggerTypeManual)
	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Empty(t, src.Transforms)
	assert.Zero(t, env.blobs.Uploads)
}

func TestRunner_RunHistory(t *testing.T) {
	type finished struct {
		id, status string
		counts     domain.RunCounts
		msg        *string
	}

	tests := []struct {
		name       string
		extractErr error
		createErr  error
		wantStatus string
		wantFinish bool
	}{
		{name: "success", wantStatus: domain.PipelineRunStatusSuccess, wantFinish: true},
		{name: "failure", extractErr: errors.New("offline"), wantStatus: domain.PipelineRunStatusFailed, wantFinish: true},
		{name: "history_unavailable", createErr: errors.New("db closed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			var created *domain.PipelineRun
			var got *finished
			env.runner.SetRunRepository(&testutil.MockPipelineRunRepo{
				CreateRunFn: func(_ context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
					created = run
					return run, tt.createErr
				},
				FinishRunFn: func(_ context.Context, id, status string, counts domain.RunCounts, msg *string) error {
					got = &finished{id: id, status: status, counts: counts, msg: msg}
					return nil
				},
			})
			src := &fakeSource{ExtractErr: tt.extractErr}
			src.SetFile("f.csv", "1,x\n")

			res, err := env.runner.Run(ctx, customersDef(src), domain.TriggerTypeScheduled)
			assert.Equal(t, tt.extractErr != nil, err != nil, "history never changes the outcome")

			require.NotNil(t, created)
			assert.Equal(t, "customers", created.PipelineName)
			assert.Equal(t, domain.TriggerTypeScheduled, created.TriggerType)
			assert.Equal(t, domain.PipelineRunStatusRunning, created.Status)

			if !tt.wantFinish {
				assert.Nil(t, got)
				assert.Empty(t, res.RunID)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, created.ID, got.id)
			assert.Equal(t, created.ID, res.RunID)
			assert.Equal(t, tt.wantStatus, got.status)
			assert.Equal(t, res.RunCounts, got.counts)
			if tt.extractErr != nil {
				require.NotNil(t, got.msg)
				assert.Contains(t, *got.msg, "offline")
			} else {
				assert.Nil(t, got.msg)
				assert.Equal(t, 1, got.counts.FilesProcessed)
			}
		})
	}
}
