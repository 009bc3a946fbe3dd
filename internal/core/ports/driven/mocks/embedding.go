package mocks

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing
type MockEmbeddingService struct {
	mu         sync.Mutex
	dimensions int
	model      string
	failNext   bool

	// NilFor returns no vector for matching texts (optional)
	NilFor func(text string) bool
	// VectorFor overrides the generated vector (optional)
	VectorFor func(text string) []float32

	Calls []string
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: 8,
		model:      "mock-embedding-model",
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, text string) []float32 {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	fail := m.failNext
	m.failNext = false
	m.mu.Unlock()

	if fail || (m.NilFor != nil && m.NilFor(text)) {
		return nil
	}
	if m.VectorFor != nil {
		if v := m.VectorFor(text); v != nil {
			return v
		}
	}
	return m.generateEmbedding(text)
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

// generateEmbedding generates a deterministic embedding based on text hash
func (m *MockEmbeddingService) generateEmbedding(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000) / 1000.0
	}
	return embedding
}

// Helper methods for testing

func (m *MockEmbeddingService) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

// CallCount returns how many times Embed was called.
func (m *MockEmbeddingService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockAnswerGenerator is a mock implementation of AnswerGenerator
type MockAnswerGenerator struct {
	mu          sync.Mutex
	GenerateFn  func(prompt string) (string, error)
	LastPrompt  string
	PromptCount int
}

func (m *MockAnswerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.LastPrompt = prompt
	m.PromptCount++
	m.mu.Unlock()
	if m.GenerateFn != nil {
		return m.GenerateFn(prompt)
	}
	return "mock answer", nil
}

// MockCredentialMonitor returns a fixed pool status
type MockCredentialMonitor struct {
	PoolStatus domain.CredentialPoolStatus
}

func (m *MockCredentialMonitor) Status() domain.CredentialPoolStatus {
	return m.PoolStatus
}
