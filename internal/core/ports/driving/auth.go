package driving

import (
	"context"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// AuthService validates and issues API bearer tokens
type AuthService interface {
	// ValidateToken validates a JWT token and returns the auth context
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// IssueToken signs a token for subject with role, valid for ttl
	IssueToken(ctx context.Context, subject string, role domain.Role, ttl time.Duration) (string, error)
}
