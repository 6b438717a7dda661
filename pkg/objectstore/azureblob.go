package objectstore

import (
	"context"
	"errors"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlob is the Azure Blob Storage-backed Backend, grounded in the
// original implementation's storage/azure.rs (StorageCredentials::access_key,
// shared-key auth from account name + access key). Named but not
// grounded in the example pack's go.mod (the pack's azure-sdk-for-go
// usage is all ACME-DNS provider plumbing, a different API surface);
// see DESIGN.md.
type AzureBlob struct {
	client    *azblob.Client
	container string
}

// NewAzureBlob builds a Backend writing to the named container at
// accountURL, authenticating with a shared-key credential built from
// account and key (read by the caller from AZURE_STORAGE_ACCOUNT and
// AZURE_STORAGE_ACCESS_KEY), matching the original implementation's
// account/key auth scheme.
func NewAzureBlob(accountURL, account, key, container string) (*AzureBlob, error) {
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, err
	}
	client, err := azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return &AzureBlob{client: client, container: container}, nil
}

func (a *AzureBlob) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrMiss
		}
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (a *AzureBlob) Put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, key, body, nil)
	return err
}

func (a *AzureBlob) DeletePrefix(ctx context.Context, prefix string) error {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Segment.BlobItems {
			if _, err := a.client.DeleteBlob(ctx, a.container, *item.Name, nil); err != nil {
				if !bloberror.HasCode(err, bloberror.BlobNotFound) {
					return err
				}
			}
		}
	}
	return nil
}

func (a *AzureBlob) Probe(ctx context.Context) error {
	_, err := a.client.ServiceClient().NewContainerClient(a.container).GetProperties(ctx, nil)
	return err
}

func (a *AzureBlob) IsAvailabilityError(err error) bool {
	return err != nil && !errors.Is(err, ErrMiss) && !bloberror.HasCode(err, bloberror.BlobNotFound)
}

