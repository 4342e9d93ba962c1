package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"duck-etl/internal/domain"
)

// Compile-time check.
var _ domain.BlobStore = (*GCSStore)(nil)

// gcsAPI is the part of the GCS client the store uses, keyed by bucket and
// object name.
type gcsAPI interface {
	Write(ctx context.Context, bucket, key, contentType string, data []byte) error
	Read(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Attrs(ctx context.Context, bucket, key string) (*storage.ObjectAttrs, error)
	Objects(ctx context.Context, bucket string, q *storage.Query) objectIterator
	Close() error
}

// objectIterator is satisfied by *storage.ObjectIterator.
type objectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// gcsClient adapts *storage.Client to gcsAPI.
type gcsClient struct{ c *storage.Client }

func (g gcsClient) Write(ctx context.Context, bucket, key, contentType string, data []byte) error {
	w := g.c.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := bytes.NewReader(data).WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g gcsClient) Read(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return g.c.Bucket(bucket).Object(key).NewReader(ctx)
}

func (g gcsClient) Attrs(ctx context.Context, bucket, key string) (*storage.ObjectAttrs, error) {
	return g.c.Bucket(bucket).Object(key).Attrs(ctx)
}

func (g gcsClient) Objects(ctx context.Context, bucket string, q *storage.Query) objectIterator {
	return g.c.Bucket(bucket).Objects(ctx, q)
}

func (g gcsClient) Close() error { return g.c.Close() }

// GCSStore keeps bronze files in a Google Cloud Storage bucket. A file's
// version is the object's Updated time.
type GCSStore struct {
	client gcsAPI
	bucket string
	root   string
}

// NewGCSStore creates a store. With an empty keyFile the client uses
// application default credentials.
func NewGCSStore(ctx context.Context, bucket, root, keyFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	var opts []option.ClientOption
	if keyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, keyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: gcsClient{c: client}, bucket: bucket, root: root}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) target(key string) string { return "gs://" + s.bucket + "/" + key }

// Upload stores the compressed content.
func (s *GCSStore) Upload(ctx context.Context, namespace, name string, content []byte) error {
	if err := validateKey(namespace, name); err != nil {
		return domain.ErrStorage("upload", namespace+"/"+name, err)
	}
	key := Key(s.root, namespace, name)
	data, err := compress(content)
	if err != nil {
		return domain.ErrStorage("upload", s.target(key), err)
	}
	if err := s.client.Write(ctx, s.bucket, key, "application/gzip", data); err != nil {
		return domain.ErrStorage("upload", s.target(key), err)
	}
	return nil
}

// Download returns the decompressed object content.
func (s *GCSStore) Download(ctx context.Context, namespace, name string) ([]byte, error) {
	if err := validateKey(namespace, name); err != nil {
		return nil, domain.ErrStorage("download", namespace+"/"+name, err)
	}
	key := Key(s.root, namespace, name)
	r, err := s.client.Read(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.ErrStorage("download", s.target(key), notFound(namespace, name))
		}
		return nil, domain.ErrStorage("download", s.target(key), err)
	}
	defer r.Close() //nolint:errcheck
	content, err := decompress(r)
	if err != nil {
		return nil, domain.ErrStorage("download", s.target(key), err)
	}
	return content, nil
}

// List returns the file names directly under the namespace prefix.
func (s *GCSStore) List(ctx context.Context, namespace string) ([]string, error) {
	if err := ValidateName(namespace); err != nil {
		return nil, domain.ErrStorage("list", namespace, err)
	}
	prefix := Prefix(s.root, namespace)
	it := s.client.Objects(ctx, s.bucket, &storage.Query{Prefix: prefix, Delimiter: "/"})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, domain.ErrStorage("list", s.target(prefix), err)
		}
		if attrs.Name == "" {
			continue // synthetic sub-prefix entry
		}
		if name := strings.TrimPrefix(attrs.Name, prefix); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// StatVersion returns the object's Updated time.
func (s *GCSStore) StatVersion(ctx context.Context, namespace, name string) (time.Time, error) {
	if err := validateKey(namespace, name); err != nil {
		return time.Time{}, domain.ErrStorage("stat", namespace+"/"+name, err)
	}
	key := Key(s.root, namespace, name)
	attrs, err := s.client.Attrs(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return time.Time{}, domain.ErrStorage("stat", s.target(key), notFound(namespace, name))
		}
		return time.Time{}, domain.ErrStorage("stat", s.target(key), err)
	}
	return domain.NormalizeVersion(attrs.Updated), nil
}
