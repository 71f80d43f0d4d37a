package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningMethod = errors.New("invalid JWT signing method")
	ErrSigningKeyTooShort   = errors.New("HS512 signing key must be at least 64 bytes (512 bits)")
	ErrTokenExpired         = errors.New("JWT token has expired")
	ErrInvalidToken         = errors.New("invalid token")
	ErrPurposeMismatch      = errors.New("JWT token purpose mismatch")
)

// PurposeEmailVerified marks tokens minted after a successful code check.
const PurposeEmailVerified = "email_verified"

// JWT signs and verifies purpose-scoped tokens.
type JWT interface {
	Generate(subject, purpose string) (string, time.Time, error)
	Verify(tokenStr, purpose string) (Claims, error)
}

type clocker interface {
	Now() time.Time
}

type generator interface {
	Generate() string
}

type Config struct {
	Secret    []byte
	Issuer    string
	Audiences []string
	TTL       time.Duration
	Clock     clocker
	UUID      generator
}

// Claims carries the verified subject (normalized email) and what the token is for.
type Claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}
