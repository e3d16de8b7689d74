package ports

import (
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

type AuthClaims struct {
	SubjectID string
	Role      domain.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	KeyID     string
}

// TokenVerifier validates bearer tokens minted by the identity service.
type TokenVerifier interface {
	ParseAndValidate(token string) (AuthClaims, error)
}

type TokenSigner interface {
	Sign(claims AuthClaims) (string, error)
}
