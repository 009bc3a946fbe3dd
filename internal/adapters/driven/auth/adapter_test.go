package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

func validClaims(role domain.Role) *domain.TokenClaims {
	now := time.Now()
	return &domain.TokenClaims{
		Subject:   "platform-api",
		Role:      role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(24 * time.Hour).Unix(),
	}
}

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter("test-secret")
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Errorf("unexpected secret %q", adapter.jwtSecret)
	}
}

func TestGenerateToken(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")

	token, err := adapter.GenerateToken(validClaims(domain.RoleService))
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	// JWT tokens have 3 parts separated by dots
	if parts := strings.Count(token, "."); parts != 2 {
		t.Errorf("expected JWT with 2 dots (3 parts), got %d dots", parts)
	}
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")
	claims := validClaims(domain.RoleAdmin)
	claims.Subject = ""

	if _, err := adapter.GenerateToken(claims); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseToken_ValidToken(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")
	original := validClaims(domain.RoleAdmin)

	token, _ := adapter.GenerateToken(original)

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if parsed.Subject != original.Subject {
		t.Errorf("expected Subject %s, got %s", original.Subject, parsed.Subject)
	}
	if parsed.Role != original.Role {
		t.Errorf("expected Role %s, got %s", original.Role, parsed.Role)
	}
	if parsed.ExpiresAt != original.ExpiresAt {
		t.Errorf("expected ExpiresAt %d, got %d", original.ExpiresAt, parsed.ExpiresAt)
	}
}

func TestParseToken_ExpiredToken(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")

	past := time.Now().Add(-2 * time.Hour)
	claims := validClaims(domain.RoleService)
	claims.IssuedAt = past.Add(-24 * time.Hour).Unix()
	claims.ExpiresAt = past.Unix()

	token, _ := adapter.GenerateToken(claims)

	_, err := adapter.ParseToken(token)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _ := NewAdapter("secret-1").GenerateToken(validClaims(domain.RoleService))

	_, err := NewAdapter("secret-2").ParseToken(token)
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseToken_MalformedToken(t *testing.T) {
	adapter := NewAdapter("test-secret")

	testCases := []string{
		"",
		"not-a-jwt",
		"invalid.token.here",
		"only.two.parts.missing",
		"header.payload",
	}

	for _, tc := range testCases {
		_, err := adapter.ParseToken(tc)
		if !errors.Is(err, domain.ErrTokenInvalid) {
			t.Errorf("expected ErrTokenInvalid for %q, got %v", tc, err)
		}
	}
}

func TestRoundTrip_AllRoles(t *testing.T) {
	adapter := NewAdapter("test-secret")

	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleService} {
		t.Run(string(role), func(t *testing.T) {
			token, err := adapter.GenerateToken(validClaims(role))
			if err != nil {
				t.Fatalf("failed to generate token: %v", err)
			}

			parsed, err := adapter.ParseToken(token)
			if err != nil {
				t.Fatalf("failed to parse token: %v", err)
			}
			if parsed.Role != role {
				t.Errorf("expected role %s, got %s", role, parsed.Role)
			}
		})
	}
}
