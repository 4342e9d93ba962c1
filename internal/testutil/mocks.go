// Package testutil provides in-memory fakes of the domain ports shared by
// tests across the module.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"duck-etl/internal/domain"
)

// === Storage Engine Mock ===

// EngineCall records one call made to MockStorageEngine.
type EngineCall struct {
	Op   string
	Path domain.TablePath
}

// MockStorageEngine implements domain.StorageEngine for testing. Methods
// without a function field succeed and do nothing, except Scan, which panics.
type MockStorageEngine struct {
	CreateFn      func(ctx context.Context, path domain.TablePath, schema domain.TableSchema, opts domain.CreateOptions) error
	OverwriteFn   func(ctx context.Context, path domain.TablePath, frame domain.Frame, predicate []domain.Filter) error
	MergeUpsertFn func(ctx context.Context, path domain.TablePath, frame domain.Frame, match []string) error
	ScanFn        func(ctx context.Context, path domain.TablePath, filters []domain.Filter, columns []string) (domain.Frame, error)
	CompactFn     func(ctx context.Context, path domain.TablePath) error
	VacuumFn      func(ctx context.Context, path domain.TablePath, retention time.Duration) error
	ReorderFn     func(ctx context.Context, path domain.TablePath, columns []string) error
	Calls         []EngineCall // collected calls for assertions
}

func (m *MockStorageEngine) record(op string, path domain.TablePath) {
	m.Calls = append(m.Calls, EngineCall{Op: op, Path: path})
}

// Ops returns the recorded operation names in call order.
func (m *MockStorageEngine) Ops() []string {
	ops := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Create implements the interface method for testing.
func (m *MockStorageEngine) Create(ctx context.Context, path domain.TablePath, schema domain.TableSchema, opts domain.CreateOptions) error {
	m.record("create", path)
	if m.CreateFn != nil {
		return m.CreateFn(ctx, path, schema, opts)
	}
	return nil
}

// Overwrite implements the interface method for testing.
func (m *MockStorageEngine) Overwrite(ctx context.Context, path domain.TablePath, frame domain.Frame, predicate []domain.Filter) error {
	m.record("overwrite", path)
	if m.OverwriteFn != nil {
		return m.OverwriteFn(ctx, path, frame, predicate)
	}
	return nil
}

// MergeUpsert implements the interface method for testing.
func (m *MockStorageEngine) MergeUpsert(ctx context.Context, path domain.TablePath, frame domain.Frame, match []string) error {
	m.record("merge", path)
	if m.MergeUpsertFn != nil {
		return m.MergeUpsertFn(ctx, path, frame, match)
	}
	return nil
}

// Scan implements the interface method for testing.
func (m *MockStorageEngine) Scan(ctx context.Context, path domain.TablePath, filters []domain.Filter, columns []string) (domain.Frame, error) {
	m.record("scan", path)
	if m.ScanFn != nil {
		return m.ScanFn(ctx, path, filters, columns)
	}
	panic("unexpected call to MockStorageEngine.Scan")
}

// Compact implements the interface method for testing.
func (m *MockStorageEngine) Compact(ctx context.Context, path domain.TablePath) error {
	m.record("compact", path)
	if m.CompactFn != nil {
		return m.CompactFn(ctx, path)
	}
	return nil
}

// Vacuum implements the interface method for testing.
func (m *MockStorageEngine) Vacuum(ctx context.Context, path domain.TablePath, retention time.Duration) error {
	m.record("vacuum", path)
	if m.VacuumFn != nil {
		return m.VacuumFn(ctx, path, retention)
	}
	return nil
}

// Reorder implements the interface method for testing.
func (m *MockStorageEngine) Reorder(ctx context.Context, path domain.TablePath, columns []string) error {
	m.record("reorder", path)
	if m.ReorderFn != nil {
		return m.ReorderFn(ctx, path, columns)
	}
	return nil
}

var _ domain.StorageEngine = (*MockStorageEngine)(nil)

// === Pipeline Run Repository Mock ===

// MockPipelineRunRepo implements domain.PipelineRunRepository for testing.
type MockPipelineRunRepo struct {
	CreateRunFn func(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error)
	FinishRunFn func(ctx context.Context, id, status string, counts domain.RunCounts, errorMsg *string) error
	GetRunFn    func(ctx context.Context, id string) (*domain.PipelineRun, error)
	ListRunsFn  func(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error)
}

// CreateRun implements the interface method for testing.
func (m *MockPipelineRunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	if m.CreateRunFn != nil {
		return m.CreateRunFn(ctx, run)
	}
	panic("unexpected call to MockPipelineRunRepo.CreateRun")
}

// FinishRun implements the interface method for testing.
func (m *MockPipelineRunRepo) FinishRun(ctx context.Context, id, status string, counts domain.RunCounts, errorMsg *string) error {
	if m.FinishRunFn != nil {
		return m.FinishRunFn(ctx, id, status, counts, errorMsg)
	}
	panic("unexpected call to MockPipelineRunRepo.FinishRun")
}

// GetRun implements the interface method for testing.
func (m *MockPipelineRunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if m.GetRunFn != nil {
		return m.GetRunFn(ctx, id)
	}
	panic("unexpected call to MockPipelineRunRepo.GetRun")
}

// ListRuns implements the interface method for testing.
func (m *MockPipelineRunRepo) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
	if m.ListRunsFn != nil {
		return m.ListRunsFn(ctx, filter)
	}
	panic("unexpected call to MockPipelineRunRepo.ListRuns")
}

var _ domain.PipelineRunRepository = (*MockPipelineRunRepo)(nil)

// === In-memory Blob Store ===

type memoryBlob struct {
	content []byte
	version time.Time
}

// MemoryBlobStore implements domain.BlobStore in memory. Every upload stamps
// the blob with the store clock, which tests can set to control versions.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string]map[string]memoryBlob
	// Now returns the version of the next upload. Defaults to time.Now.
	Now func() time.Time
	// Uploads counts successful uploads.
	Uploads int
}

// NewMemoryBlobStore creates an empty MemoryBlobStore.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]map[string]memoryBlob), Now: time.Now}
}

// Upload implements the interface method for testing.
func (s *MemoryBlobStore) Upload(_ context.Context, namespace, name string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs[namespace] == nil {
		s.blobs[namespace] = make(map[string]memoryBlob)
	}
	s.blobs[namespace][name] = memoryBlob{content: append([]byte(nil), content...), version: s.Now()}
	s.Uploads++
	return nil
}

// Download implements the interface method for testing.
func (s *MemoryBlobStore) Download(_ context.Context, namespace, name string) ([]byte, error) {
	b, err := s.get(namespace, name, "download")
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b.content...), nil
}

// List implements the interface method for testing.
func (s *MemoryBlobStore) List(_ context.Context, namespace string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.blobs[namespace]))
	for name := range s.blobs[namespace] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// StatVersion implements the interface method for testing.
func (s *MemoryBlobStore) StatVersion(_ context.Context, namespace, name string) (time.Time, error) {
	b, err := s.get(namespace, name, "stat")
	if err != nil {
		return time.Time{}, err
	}
	return domain.NormalizeVersion(b.version), nil
}

// SetVersion overrides the version of a stored blob.
func (s *MemoryBlobStore) SetVersion(namespace, name string, version time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.blobs[namespace][name]
	b.version = version
	s.blobs[namespace][name] = b
}

func (s *MemoryBlobStore) get(namespace, name, op string) (memoryBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[namespace][name]
	if !ok {
		return memoryBlob{}, domain.ErrStorage(op, namespace+"/"+name, domain.ErrNotFound("blob %s/%s not found", namespace, name))
	}
	return b, nil
}

var _ domain.BlobStore = (*MemoryBlobStore)(nil)
