package driven

import "context"

// Fetcher downloads one remote artifact, applying its own retry policy.
// A definitive miss is a *domain.DownloadError with NotFound set.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DownloadCache is a local cache of fetched artifacts keyed by URL.
// Bytes are returned exactly as received.
type DownloadCache interface {
	// Get returns cached bytes and true, or nil and false on a miss
	Get(url string) ([]byte, bool, error)

	// Put stores data for url
	Put(url string, data []byte) error

	// Close releases the cache
	Close() error
}
