package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

type BlobStorage interface {
	GetImage(ctx context.Context, blobURL string) (image.Image, error)
}

type azureStorage struct {
	client *azblob.Client
}

func NewAzureStorage(accountName string, accountKey string) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)

	return &azureStorage{client: client}, nil
}

func (s *azureStorage) GetImage(ctx context.Context, blobURL string) (image.Image, error) {
	parsedURL, err := url.Parse(blobURL)
	if err != nil {
		return nil, fmt.Errorf("invalid blob URL: %w", err)
	}

	containerName := parsedURL.Path[1:] // Remove leading slash
	blobName := parsedURL.Query().Get("blob")

	// Download blob to stream
	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	img, _, err := image.Decode(retryReader)
	return img, err
}

// AzureBlobStore generalizes the teacher's unused azureStorage (read-only
// GetImage) into the full BlobStore contract -- save/delete/get_url plus
// FetchImage for the job runner's read path -- finally giving the
// previously-stubbed factory.CreateStorage("azure") TODO a real backend.
// Selected by STORAGE_BACKEND=azure.
type AzureBlobStore struct {
	client        *azblob.Client
	containerName string
	accountURL    string
}

// NewAzureBlobStore builds an AzureBlobStore against containerName in the
// account identified by accountName/accountKey.
func NewAzureBlobStore(accountName, accountKey, containerName string) (*AzureBlobStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	accountURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(accountURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &AzureBlobStore{
		client:        client,
		containerName: containerName,
		accountURL:    accountURL,
	}, nil
}

// Save uploads data as blobName inside the store's container and returns its
// stable URL.
func (s *AzureBlobStore) Save(ctx context.Context, filename string, data []byte) (string, error) {
	_, err := s.client.UploadBuffer(ctx, s.containerName, filename, data, nil)
	if err != nil {
		return "", fmt.Errorf("azure upload failed: %w", err)
	}
	return s.GetURL(filename), nil
}

// Delete removes blobName from the store's container.
func (s *AzureBlobStore) Delete(ctx context.Context, filename string) (bool, error) {
	_, err := s.client.DeleteBlob(ctx, s.containerName, filename, nil)
	if err != nil {
		return false, fmt.Errorf("azure delete failed: %w", err)
	}
	return true, nil
}

// GetURL returns the stable blob URL for filename without a round trip.
func (s *AzureBlobStore) GetURL(filename string) string {
	return fmt.Sprintf("%s/%s/%s", s.accountURL, s.containerName, filename)
}

// FetchImage downloads and decodes the blob at imageURL, satisfying
// ImageFetcher (and therefore BlobStore) for the job runner's read path.
func (s *AzureBlobStore) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid blob URL: %w", err)
	}

	blobName := parsedURL.Query().Get("blob")
	if blobName == "" {
		// accountURL/container/blobName form, as produced by GetURL.
		blobName = parsedURL.Path[len("/"+s.containerName+"/"):]
	}

	downloadResponse, err := s.client.DownloadStream(ctx, s.containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("azure download failed: %w", err)
	}
	defer downloadResponse.Body.Close()

	buf, err := io.ReadAll(downloadResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("azure download read failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
