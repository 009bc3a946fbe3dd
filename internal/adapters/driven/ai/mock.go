package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

var _ driven.ProviderClient = (*MockProvider)(nil)

// MockProvider produces deterministic unit vectors and templated answers.
// Equal text always yields the same vector.
type MockProvider struct {
	dims int
}

func NewMockProvider(dims int) *MockProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &MockProvider{dims: dims}
}

func (m *MockProvider) Name() string           { return "mock" }
func (m *MockProvider) EmbeddingModel() string { return "mock-embedding" }

func (m *MockProvider) EmbedWithKey(_ context.Context, _, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(strings.Fields(text), " ")))
	state := h.Sum64()

	vec := make([]float32, m.dims)
	var norm float64
	for i := range vec {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(state%2001)/1000 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (m *MockProvider) GenerateWithKey(_ context.Context, _, prompt string) (string, error) {
	return fmt.Sprintf("[offline answer] No AI provider is configured. The question was asked with %d words of context.",
		domain.WordCount(prompt)), nil
}
