package domain

// Role defines caller permission level
type Role string

const (
	RoleAdmin   Role = "admin"   // Operate ingestion, indexes and credentials
	RoleService Role = "service" // Trigger ingestion and search on behalf of the platform
)

// AuthContext contains authenticated caller info for request context
type AuthContext struct {
	Subject string `json:"sub"`
	Role    Role   `json:"role"`
}

// IsAdmin checks if the caller is an operator
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// TokenClaims represents the JWT token payload
type TokenClaims struct {
	Subject   string `json:"sub"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
