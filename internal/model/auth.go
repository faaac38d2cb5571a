package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialScheme tells the validator how the caller presented a credential.
type CredentialScheme string

const (
	SchemeBearer CredentialScheme = "bearer"
	SchemeAPIKey CredentialScheme = "api_key"
)

// Credential is the raw caller-supplied secret extracted from a request.
type Credential struct {
	Scheme CredentialScheme
	Value  string
}

// Identity is the authenticated caller. Every provider-scoped route reads ProviderID from it.
type Identity struct {
	ProviderID string
	Subject    string
	Scheme     CredentialScheme
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	jwt.RegisteredClaims
	ProviderID string `json:"provider_id"`
}

// APIKey is a stored provider API key. Only the bcrypt hash of the secret is kept.
type APIKey struct {
	KeyID      string     `db:"key_id"`
	ProviderID string     `db:"provider_id"`
	SecretHash string     `db:"secret_hash"`
	CreatedAt  time.Time  `db:"created_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
