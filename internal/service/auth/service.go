package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/provider-api/internal/model"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
)

var (
	ErrMissingCredential  = errors.New("missing credential")
	ErrUnsupportedScheme  = errors.New("unsupported credential scheme")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRevokedCredential  = errors.New("credential revoked")
)

// Validator turns a caller-supplied credential into a provider identity.
// Failures are AppErrors: ErrUnauthorized for bad credentials, ErrUnavailable
// when the backing store cannot be reached.
type Validator interface {
	Validate(ctx context.Context, cred model.Credential) (*model.Identity, error)
}

// Chain dispatches a credential to the validator registered for its scheme.
type Chain struct {
	validators map[model.CredentialScheme]Validator
}

func NewChain(validators map[model.CredentialScheme]Validator) *Chain {
	return &Chain{validators: validators}
}

func (c *Chain) Validate(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	if cred.Value == "" {
		return nil, apperrors.Unauthorized(ErrMissingCredential)
	}
	v, ok := c.validators[cred.Scheme]
	if !ok {
		return nil, apperrors.Unauthorized(fmt.Errorf("%w: %s", ErrUnsupportedScheme, cred.Scheme))
	}
	return v.Validate(ctx, cred)
}
