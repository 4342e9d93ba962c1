package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"duck-etl/internal/domain"
)

// Compile-time check.
var _ domain.BlobStore = (*LocalStore)(nil)

// LocalStore keeps bronze files on the local filesystem. A file's version is
// its modification time.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) path(namespace, name string) string {
	return filepath.Join(s.root, BronzeDir, namespace, name)
}

// Upload writes the compressed content through a temp file and a rename, so a
// reader never sees a partial file.
func (s *LocalStore) Upload(_ context.Context, namespace, name string, content []byte) error {
	if err := validateKey(namespace, name); err != nil {
		return domain.ErrStorage("upload", namespace+"/"+name, err)
	}
	p := s.path(namespace, name)
	data, err := compress(content)
	if err != nil {
		return domain.ErrStorage("upload", p, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return domain.ErrStorage("upload", p, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return domain.ErrStorage("upload", p, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return domain.ErrStorage("upload", p, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.ErrStorage("upload", p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return domain.ErrStorage("upload", p, err)
	}
	return nil
}

// Download returns the decompressed content of a staged file.
func (s *LocalStore) Download(_ context.Context, namespace, name string) ([]byte, error) {
	if err := validateKey(namespace, name); err != nil {
		return nil, domain.ErrStorage("download", namespace+"/"+name, err)
	}
	p := s.path(namespace, name)
	data, err := os.ReadFile(p) //nolint:gosec // path is built from validated names
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrStorage("download", p, notFound(namespace, name))
		}
		return nil, domain.ErrStorage("download", p, err)
	}
	content, err := decompress(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrStorage("download", p, err)
	}
	return content, nil
}

// List returns the file names of a namespace in lexical order. A namespace
// that was never written to is empty.
func (s *LocalStore) List(_ context.Context, namespace string) ([]string, error) {
	if err := ValidateName(namespace); err != nil {
		return nil, domain.ErrStorage("list", namespace, err)
	}
	dir := filepath.Join(s.root, BronzeDir, namespace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.ErrStorage("list", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// StatVersion returns the file's modification time.
func (s *LocalStore) StatVersion(_ context.Context, namespace, name string) (time.Time, error) {
	if err := validateKey(namespace, name); err != nil {
		return time.Time{}, domain.ErrStorage("stat", namespace+"/"+name, err)
	}
	p := s.path(namespace, name)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, domain.ErrStorage("stat", p, notFound(namespace, name))
		}
		return time.Time{}, domain.ErrStorage("stat", p, err)
	}
	if info.IsDir() {
		return time.Time{}, domain.ErrStorage("stat", p, fmt.Errorf("%s is a directory", p))
	}
	return domain.NormalizeVersion(info.ModTime()), nil
}
