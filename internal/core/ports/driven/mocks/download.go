package mocks

import (
	"context"
	"sync"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// MockFetcher serves canned bytes per URL and can script failures.
type MockFetcher struct {
	mu      sync.Mutex
	Bodies  map[string][]byte
	Missing map[string]bool

	// Failures lists errors returned for a URL before succeeding, one per attempt
	Failures map[string][]error

	Attempts map[string]int
}

// NewMockFetcher creates a new MockFetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Bodies:   make(map[string][]byte),
		Missing:  make(map[string]bool),
		Failures: make(map[string][]error),
		Attempts: make(map[string]int),
	}
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts[url]++

	if m.Missing[url] {
		return nil, &domain.DownloadError{URL: url, StatusCode: 404, NotFound: true, Attempts: 1}
	}
	if fails := m.Failures[url]; len(fails) > 0 {
		m.Failures[url] = fails[1:]
		return nil, fails[0]
	}
	body, ok := m.Bodies[url]
	if !ok {
		return nil, &domain.DownloadError{URL: url, StatusCode: 404, NotFound: true, Attempts: 1}
	}
	return body, nil
}

// AttemptCount returns how many times url was fetched.
func (m *MockFetcher) AttemptCount(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Attempts[url]
}

// MockDownloadCache is an in-memory DownloadCache
type MockDownloadCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMockDownloadCache creates a new MockDownloadCache
func NewMockDownloadCache() *MockDownloadCache {
	return &MockDownloadCache{items: make(map[string][]byte)}
}

func (m *MockDownloadCache) Get(url string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[url]
	return b, ok, nil
}

func (m *MockDownloadCache) Put(url string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[url] = data
	return nil
}

func (m *MockDownloadCache) Close() error { return nil }

// MockExtractorRegistry returns fixed text, or an error, for every input.
type MockExtractorRegistry struct {
	ExtractFn func(data []byte, hint string) (*domain.ExtractedText, error)
}

func (m *MockExtractorRegistry) Extract(ctx context.Context, data []byte, hint string) (*domain.ExtractedText, error) {
	if m.ExtractFn != nil {
		return m.ExtractFn(data, hint)
	}
	return &domain.ExtractedText{Text: string(data), Units: 1}, nil
}

func (m *MockExtractorRegistry) Get(hint string) driven.Extractor { return nil }

func (m *MockExtractorRegistry) Register(e driven.Extractor) {}
