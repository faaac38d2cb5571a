package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
	"github.com/jwalitptl/provider-api/pkg/security"
)

const (
	bcryptCost  = 12
	secretBytes = 24
)

// APIKeyValidator checks X-API-Key credentials of the form "<key_id>.<secret>".
type APIKeyValidator struct {
	repo   repository.APIKeyRepository
	hasher security.SecretHasher
}

func NewAPIKeyValidator(repo repository.APIKeyRepository) *APIKeyValidator {
	return &APIKeyValidator{repo: repo, hasher: security.NewBcryptHasher(bcryptCost)}
}

func (v *APIKeyValidator) Validate(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	if cred.Scheme != model.SchemeAPIKey {
		return nil, apperrors.Unauthorized(ErrUnsupportedScheme)
	}

	keyID, secret, ok := strings.Cut(cred.Value, ".")
	if !ok || keyID == "" || secret == "" {
		return nil, apperrors.Unauthorized(fmt.Errorf("%w: malformed api key", ErrInvalidCredentials))
	}

	key, err := v.repo.Get(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(ErrInvalidCredentials)
		}
		return nil, apperrors.Upstream(err)
	}

	if key.RevokedAt != nil {
		return nil, apperrors.Unauthorized(ErrRevokedCredential)
	}

	if err := v.hasher.Compare(key.SecretHash, secret); err != nil {
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	return &model.Identity{
		ProviderID: key.ProviderID,
		Subject:    key.KeyID,
		Scheme:     model.SchemeAPIKey,
	}, nil
}

// Create stores a new key for providerID and returns the plaintext
// "<key_id>.<secret>". The secret cannot be recovered afterwards.
func (v *APIKeyValidator) Create(ctx context.Context, providerID string) (string, error) {
	if providerID == "" {
		return "", apperrors.BadRequest("provider_id is required", nil)
	}

	secret, err := security.RandomHex(secretBytes)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("failed to generate secret: %w", err))
	}

	hash, err := v.hasher.Hash(secret)
	if err != nil {
		return "", apperrors.Internal(err)
	}

	key := &model.APIKey{
		KeyID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		ProviderID: providerID,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := v.repo.Create(ctx, key); err != nil {
		return "", apperrors.Upstream(err)
	}
	return key.KeyID + "." + secret, nil
}

// Revoke disables a key. Revoking an unknown or already revoked key is NotFound.
func (v *APIKeyValidator) Revoke(ctx context.Context, keyID string) error {
	if err := v.repo.Revoke(ctx, keyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("api key", err)
		}
		return apperrors.Upstream(err)
	}
	return nil
}
