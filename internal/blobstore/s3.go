package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"duck-etl/internal/domain"
)

// Compile-time check.
var _ domain.BlobStore = (*S3Store)(nil)

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures an S3-compatible bronze store.
type S3Options struct {
	Bucket   string
	Root     string // key prefix inside the bucket
	KeyID    string
	Secret   string
	Endpoint string // host[:port], empty for AWS
	Region   string
	URLStyle string // "path" (default) or "vhost"
}

// S3Store keeps bronze files in an S3-compatible bucket. A file's version is
// the object's LastModified time.
type S3Store struct {
	client s3API
	bucket string
	root   string
}

// NewS3Store creates a store with static credentials.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if opts.KeyID == "" || opts.Secret == "" {
		return nil, fmt.Errorf("S3 key id and secret are required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	s3Opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, ""),
		UsePathStyle: opts.URLStyle != "vhost",
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3Opts.BaseEndpoint = aws.String(endpoint)
	}
	return &S3Store{client: s3.New(s3Opts), bucket: opts.Bucket, root: opts.Root}, nil
}

func (s *S3Store) key(namespace, name string) string {
	return Key(s.root, namespace, name)
}

// Upload stores the compressed content.
func (s *S3Store) Upload(ctx context.Context, namespace, name string, content []byte) error {
	if err := validateKey(namespace, name); err != nil {
		return domain.ErrStorage("upload", namespace+"/"+name, err)
	}
	key := s.key(namespace, name)
	data, err := compress(content)
	if err != nil {
		return domain.ErrStorage("upload", key, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(data),
		ContentType:     aws.String("application/gzip"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return domain.ErrStorage("upload", "s3://"+s.bucket+"/"+key, err)
	}
	return nil
}

// Download returns the decompressed object content.
func (s *S3Store) Download(ctx context.Context, namespace, name string) ([]byte, error) {
	if err := validateKey(namespace, name); err != nil {
		return nil, domain.ErrStorage("download", namespace+"/"+name, err)
	}
	key := s.key(namespace, name)
	target := "s3://" + s.bucket + "/" + key
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, domain.ErrStorage("download", target, notFound(namespace, name))
		}
		return nil, domain.ErrStorage("download", target, err)
	}
	defer out.Body.Close() //nolint:errcheck
	content, err := decompress(out.Body)
	if err != nil {
		return nil, domain.ErrStorage("download", target, err)
	}
	return content, nil
}

// List returns the file names directly under the namespace prefix.
func (s *S3Store) List(ctx context.Context, namespace string) ([]string, error) {
	if err := ValidateName(namespace); err != nil {
		return nil, domain.ErrStorage("list", namespace, err)
	}
	prefix := Prefix(s.root, namespace)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.ErrStorage("list", "s3://"+s.bucket+"/"+prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// StatVersion returns the object's LastModified time.
func (s *S3Store) StatVersion(ctx context.Context, namespace, name string) (time.Time, error) {
	if err := validateKey(namespace, name); err != nil {
		return time.Time{}, domain.ErrStorage("stat", namespace+"/"+name, err)
	}
	key := s.key(namespace, name)
	target := "s3://" + s.bucket + "/" + key
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return time.Time{}, domain.ErrStorage("stat", target, notFound(namespace, name))
		}
		return time.Time{}, domain.ErrStorage("stat", target, err)
	}
	if out.LastModified == nil {
		return time.Time{}, domain.ErrStorage("stat", target, fmt.Errorf("object has no LastModified"))
	}
	return domain.NormalizeVersion(*out.LastModified), nil
}
