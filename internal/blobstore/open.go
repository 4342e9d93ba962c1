package blobstore

import (
	"context"
	"fmt"

	"duck-etl/internal/config"
	"duck-etl/internal/domain"
)

// Open builds the bronze store selected by BLOB_BACKEND. The local store is
// rooted at DATA_ROOT; cloud stores keep keys at bronze/<pipeline>/<file>
// inside BLOB_BUCKET.
func Open(ctx context.Context, cfg *config.Config) (domain.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendLocal, "":
		return NewLocalStore(cfg.DataRoot), nil
	case config.BlobBackendS3:
		return NewS3Store(S3Options{
			Bucket:   cfg.BlobBucket,
			KeyID:    cfg.S3KeyID,
			Secret:   cfg.S3Secret,
			Endpoint: cfg.S3Endpoint,
			Region:   cfg.S3Region,
			URLStyle: cfg.S3URLStyle,
		})
	case config.BlobBackendGCS:
		return NewGCSStore(ctx, cfg.BlobBucket, "", cfg.GCSKeyFile)
	case config.BlobBackendAzure:
		return NewAzureStore(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.BlobBucket, "")
	default:
		return nil, domain.ErrConfiguration("unsupported blob backend %q", cfg.BlobBackend)
	}
}

// Describe returns a human-readable location of the bronze area.
func Describe(cfg *config.Config) string {
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		return fmt.Sprintf("s3://%s/%s", cfg.BlobBucket, BronzeDir)
	case config.BlobBackendGCS:
		return fmt.Sprintf("gs://%s/%s", cfg.BlobBucket, BronzeDir)
	case config.BlobBackendAzure:
		return fmt.Sprintf("az://%s/%s", cfg.BlobBucket, BronzeDir)
	default:
		return Key(cfg.DataRoot, "", "")
	}
}
