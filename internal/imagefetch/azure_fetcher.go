package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobFetcher downloads images from a private Azure storage account using
// shared key credentials.
type AzureBlobFetcher struct {
	client   *azblob.Client
	host     string
	maxBytes int64
}

// NewAzureBlobFetcher authenticates against accountName with accountKey.
func NewAzureBlobFetcher(accountName, accountKey string, maxBytes int64) (*AzureBlobFetcher, error) {
	if accountName == "" || accountKey == "" {
		return nil, errors.New("azure storage account name and key are required")
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	host := AzureBlobHost(accountName)
	client, err := azblob.NewClientWithSharedKeyCredential("https://"+host, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &AzureBlobFetcher{client: client, host: host, maxBytes: maxBytes}, nil
}

// AzureBlobHost is the blob endpoint host of a storage account.
func AzureBlobHost(accountName string) string {
	return strings.ToLower(accountName) + ".blob.core.windows.net"
}

// Host is the blob endpoint this fetcher serves, for use with Router.Handle.
func (s *AzureBlobFetcher) Host() string {
	return s.host
}

// Fetch downloads the blob addressed by blobURL from the configured account.
func (s *AzureBlobFetcher) Fetch(ctx context.Context, blobURL string) (*Payload, error) {
	containerName, blobName, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download blob %s/%s: %w", containerName, blobName, err)
	}
	defer resp.Body.Close()

	contentType := ""
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	return readPayload(resp.Body, contentType, s.maxBytes)
}

// ParseBlobURL splits https://<account>.blob.core.windows.net/<container>/<blob path>
// into container and blob names.
func ParseBlobURL(blobURL string) (containerName, blobName string, err error) {
	parsed, err := url.Parse(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}

	path := strings.TrimPrefix(parsed.Path, "/")
	containerName, blobName, ok := strings.Cut(path, "/")
	if !ok || containerName == "" || blobName == "" {
		return "", "", fmt.Errorf("invalid blob URL %q: expected /<container>/<blob>", blobURL)
	}
	return containerName, blobName, nil
}
