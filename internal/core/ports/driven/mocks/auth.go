package mocks

import (
	"encoding/json"
	"strings"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// MockAuthAdapter encodes claims as plain JSON behind a "mock." prefix.
type MockAuthAdapter struct {
	GenerateFn func(claims *domain.TokenClaims) (string, error)
}

// NewMockAuthAdapter creates a new MockAuthAdapter
func NewMockAuthAdapter() *MockAuthAdapter {
	return &MockAuthAdapter{}
}

func (m *MockAuthAdapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	if m.GenerateFn != nil {
		return m.GenerateFn(claims)
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return "mock." + string(b), nil
}

func (m *MockAuthAdapter) ParseToken(token string) (*domain.TokenClaims, error) {
	raw, ok := strings.CutPrefix(token, "mock.")
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	var claims domain.TokenClaims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	return &claims, nil
}
