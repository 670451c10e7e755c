package checkpoint

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// BlobStore keeps one <id>.token block blob per operation in a container
type BlobStore struct {
	client    *azblob.Client
	container string
}

// NewBlobStore wraps an existing azblob client
func NewBlobStore(client *azblob.Client, container string) *BlobStore {
	return &BlobStore{client: client, container: container}
}

// OpenBlobStore authenticates with DefaultAzureCredential against accountURL
func OpenBlobStore(accountURL, container string) (*BlobStore, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return NewBlobStore(client, container), nil
}

// Save uploads the token, replacing any previous blob
func (s *BlobStore) Save(ctx context.Context, id, token string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, id+tokenSuffix, []byte(token), nil); err != nil {
		return fmt.Errorf("failed to upload checkpoint %s: %w", id, err)
	}
	return nil
}

// Load downloads the token blob
func (s *BlobStore) Load(ctx context.Context, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, id+tokenSuffix, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to download checkpoint %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}
	return string(data), nil
}

// Delete removes the token blob
func (s *BlobStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	_, err := s.client.DeleteBlob(ctx, s.container, id+tokenSuffix, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	return nil
}

// List pages through the container and downloads every token blob
func (s *BlobStore) List(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoints: %w", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil || !strings.HasSuffix(*item.Name, tokenSuffix) {
				continue
			}
			id := strings.TrimSuffix(*item.Name, tokenSuffix)
			if ValidateID(id) != nil {
				continue
			}
			token, err := s.Load(ctx, id)
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			out[id] = token
		}
	}
	return out, nil
}

// Close is a no-op
func (s *BlobStore) Close() error { return nil }
