// Package storage implements the persisted-image contract the core depends
// on (§6 of SPEC_FULL.md): save/delete/get_url, plus the read path the job
// runner uses to fetch the bytes an already-persisted job row points at.
package storage

import (
	"context"
	"image"
)

// BlobStore is the storage contract the ingestion handler and job runner
// share: save persists uploaded bytes and returns a stable URL, delete
// removes a previously saved blob, and getURL recovers the URL for a
// filename without a round trip. It embeds ImageFetcher so any BlobStore
// can also serve as the job runner's read path for a job's image_url.
type BlobStore interface {
	ImageFetcher

	// Save persists data under filename and returns a stable URL a later
	// Fetch/FetchImage call can resolve back to the same bytes.
	Save(ctx context.Context, filename string, data []byte) (string, error)

	// Delete removes a previously saved blob. Returns false if it did not
	// exist.
	Delete(ctx context.Context, filename string) (bool, error)

	// GetURL returns the stable URL for filename without touching the
	// backend.
	GetURL(filename string) string
}

// Fetch is an alias of ImageFetcher (FetchImage(ctx, url)). It does not
// provide the runner.ImageFetcher shape (Fetch(ctx, url)); NewRunnerFetcher
// below does that.
type Fetch = ImageFetcher

// runnerFetcherAdapter narrows a BlobStore down to the single-method shape
// internal/runner.ImageFetcher expects, without internal/storage importing
// internal/runner (the dependency would run the wrong direction).
type runnerFetcherAdapter struct {
	store BlobStore
}

// NewRunnerFetcher wraps store so it satisfies any Fetch(ctx, string)
// (image.Image, error) interface, such as runner.ImageFetcher.
func NewRunnerFetcher(store BlobStore) interface {
	Fetch(ctx context.Context, imageURL string) (image.Image, error)
} {
	return runnerFetcherAdapter{store: store}
}

func (a runnerFetcherAdapter) Fetch(ctx context.Context, imageURL string) (image.Image, error) {
	return a.store.FetchImage(ctx, imageURL)
}
