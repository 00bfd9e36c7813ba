package downloader

import (
	"context"
	"net/http"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// Fetcher writes remote assets to local storage.
type Fetcher interface {
	// Fetch downloads one asset.
	Fetch(ctx context.Context, req FetchRequest) (*domain.DownloadOutcome, error)

	// Store writes an already-open response body. The body is always closed.
	Store(resp *http.Response, req FetchRequest) (*domain.DownloadOutcome, error)

	// FetchAll downloads each request independently. Results are in request order.
	FetchAll(ctx context.Context, reqs []FetchRequest) []FetchResult
}

// FetchRequest describes one asset to download.
type FetchRequest struct {
	Index int
	URL   string
	// Dir is the target directory; it is created when missing.
	Dir string
	// DefaultName is used when the response carries no Content-Disposition filename.
	DefaultName string
	// Headers are sent with the request. They are never shared with a cookie jar.
	Headers http.Header
}

// FetchResult is the outcome of one request in a FetchAll batch.
type FetchResult struct {
	Index   int
	Outcome *domain.DownloadOutcome
	Err     error
}
