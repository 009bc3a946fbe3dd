package domain

import "sync"

// RuntimeConfig tracks which backends and AI capabilities are active.
// Backends are fixed at startup; the mock flag may change if keys are reloaded.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	QueueBackend string // "redis" or "postgres"

	embeddingDimensions int
	mockProvider        bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(queueBackend string, dimensions int) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend:        queueBackend,
		embeddingDimensions: dimensions,
	}
}

// EmbeddingDimensions returns the fixed vector width of the store
func (c *RuntimeConfig) EmbeddingDimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingDimensions
}

// MockProvider reports whether the AI client is running offline
func (c *RuntimeConfig) MockProvider() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mockProvider
}

// SetMockProvider updates the offline flag
func (c *RuntimeConfig) SetMockProvider(mock bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mockProvider = mock
}
