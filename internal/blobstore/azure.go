package blobstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"duck-etl/internal/domain"
)

// Compile-time check.
var _ domain.BlobStore = (*AzureStore)(nil)

// azureAPI is the part of the Azure blob client the store uses. Errors are
// returned as the SDK reports them.
type azureAPI interface {
	Upload(ctx context.Context, container, key string, data []byte) error
	Download(ctx context.Context, container, key string) (io.ReadCloser, error)
	// ListNames returns every blob name starting with prefix, across pages.
	ListNames(ctx context.Context, container, prefix string) ([]string, error)
	LastModified(ctx context.Context, container, key string) (*time.Time, error)
}

// azureClient adapts *azblob.Client to azureAPI.
type azureClient struct{ c *azblob.Client }

func (a azureClient) Upload(ctx context.Context, container, key string, data []byte) error {
	_, err := a.c.UploadBuffer(ctx, container, key, data, nil)
	return err
}

func (a azureClient) Download(ctx context.Context, container, key string) (io.ReadCloser, error) {
	resp, err := a.c.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (a azureClient) ListNames(ctx context.Context, container, prefix string) ([]string, error) {
	pager := a.c.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	var names []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func (a azureClient) LastModified(ctx context.Context, container, key string) (*time.Time, error) {
	props, err := a.c.ServiceClient().NewContainerClient(container).NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return nil, err
	}
	return props.LastModified, nil
}

// AzureStore keeps bronze files in an Azure Blob Storage container. A file's
// version is the blob's Last-Modified time.
type AzureStore struct {
	client    azureAPI
	container string
	root      string
}

// NewAzureStore creates a store authenticated with a shared account key.
func NewAzureStore(accountName, accountKey, container, root string) (*AzureStore, error) {
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("Azure account name and key are required")
	}
	if container == "" {
		return nil, fmt.Errorf("Azure container is required")
	}
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureStore{client: azureClient{c: client}, container: container, root: root}, nil
}

func (s *AzureStore) target(key string) string { return "az://" + s.container + "/" + key }

// Upload stores the compressed content.
func (s *AzureStore) Upload(ctx context.Context, namespace, name string, content []byte) error {
	if err := validateKey(namespace, name); err != nil {
		return domain.ErrStorage("upload", namespace+"/"+name, err)
	}
	key := Key(s.root, namespace, name)
	data, err := compress(content)
	if err != nil {
		return domain.ErrStorage("upload", s.target(key), err)
	}
	if err := s.client.Upload(ctx, s.container, key, data); err != nil {
		return domain.ErrStorage("upload", s.target(key), err)
	}
	return nil
}

// Download returns the decompressed blob content.
func (s *AzureStore) Download(ctx context.Context, namespace, name string) ([]byte, error) {
	if err := validateKey(namespace, name); err != nil {
		return nil, domain.ErrStorage("download", namespace+"/"+name, err)
	}
	key := Key(s.root, namespace, name)
	body, err := s.client.Download(ctx, s.container, key)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, domain.ErrStorage("download", s.target(key), notFound(namespace, name))
		}
		return nil, domain.ErrStorage("download", s.target(key), err)
	}
	defer body.Close() //nolint:errcheck
	content, err := decompress(body)
	if err != nil {
		return nil, domain.ErrStorage("download", s.target(key), err)
	}
	return content, nil
}

// List returns the blob names directly under the namespace prefix.
func (s *AzureStore) List(ctx context.Context, namespace string) ([]string, error) {
	if err := ValidateName(namespace); err != nil {
		return nil, domain.ErrStorage("list", namespace, err)
	}
	prefix := Prefix(s.root, namespace)
	keys, err := s.client.ListNames(ctx, s.container, prefix)
	if err != nil {
		return nil, domain.ErrStorage("list", s.target(prefix), err)
	}
	var names []string
	for _, key := range keys {
		name, ok := strings.CutPrefix(key, prefix)
		if !ok || name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// StatVersion returns the blob's Last-Modified time.
func (s *AzureStore) StatVersion(ctx context.Context, namespace, name string) (time.Time, error) {
	if err := validateKey(namespace, name); err != nil {
		return time.Time{}, domain.ErrStorage("stat", namespace+"/"+name, err)
	}
	key := Key(s.root, namespace, name)
	modified, err := s.client.LastModified(ctx, s.container, key)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return time.Time{}, domain.ErrStorage("stat", s.target(key), notFound(namespace, name))
		}
		return time.Time{}, domain.ErrStorage("stat", s.target(key), err)
	}
	if modified == nil {
		return time.Time{}, domain.ErrStorage("stat", s.target(key), fmt.Errorf("blob has no Last-Modified"))
	}
	return domain.NormalizeVersion(*modified), nil
}
