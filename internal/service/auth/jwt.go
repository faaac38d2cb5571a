package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/provider-api/internal/model"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
)

// JWTValidator validates and issues HS256 bearer tokens carrying a provider_id claim.
type JWTValidator struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewJWTValidator(secret, issuer string, expiry time.Duration) *JWTValidator {
	return &JWTValidator{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

func (v *JWTValidator) Validate(_ context.Context, cred model.Credential) (*model.Identity, error) {
	if cred.Scheme != model.SchemeBearer {
		return nil, apperrors.Unauthorized(ErrUnsupportedScheme)
	}

	claims := &model.TokenClaims{}
	_, err := jwt.ParseWithClaims(cred.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("%w: %v", ErrInvalidCredentials, err))
	}

	if claims.ProviderID == "" {
		return nil, apperrors.Unauthorized(fmt.Errorf("%w: missing provider_id claim", ErrInvalidCredentials))
	}

	return &model.Identity{
		ProviderID: claims.ProviderID,
		Subject:    claims.Subject,
		Scheme:     model.SchemeBearer,
	}, nil
}

// Issue signs a token for providerID.
func (v *JWTValidator) Issue(providerID string) (*model.TokenResponse, error) {
	if providerID == "" {
		return nil, apperrors.BadRequest("provider_id is required", nil)
	}

	now := v.now()
	expiresAt := now.Add(v.expiry)
	claims := model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   providerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		ProviderID: providerID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to sign token: %w", err))
	}

	return &model.TokenResponse{AccessToken: signed, ExpiresAt: expiresAt}, nil
}
