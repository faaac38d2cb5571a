package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/service/auth"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-Key"

	ContextProviderID = "provider_id"
	ContextIdentity   = "identity"
)

type AuthMiddleware struct {
	validator auth.Validator
}

func NewAuthMiddleware(validator auth.Validator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate resolves the caller's provider from a bearer token or an API key
// and stores it in the context. Bearer wins when both headers are present.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, err := credentialFromRequest(c)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		identity, err := m.validator.Validate(c.Request.Context(), cred)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		c.Set(ContextProviderID, identity.ProviderID)
		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

func credentialFromRequest(c *gin.Context) (model.Credential, error) {
	if header := c.GetHeader(HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return model.Credential{}, apperrors.Unauthorized(auth.ErrUnsupportedScheme)
		}
		return model.Credential{Scheme: model.SchemeBearer, Value: strings.TrimSpace(token)}, nil
	}

	if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
		return model.Credential{Scheme: model.SchemeAPIKey, Value: key}, nil
	}

	return model.Credential{}, apperrors.Unauthorized(auth.ErrMissingCredential)
}

// ProviderID returns the authenticated provider, or "" outside the auth group.
func ProviderID(c *gin.Context) string {
	return c.GetString(ContextProviderID)
}

// IdentityFrom returns the authenticated identity if there is one.
func IdentityFrom(c *gin.Context) (*model.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*model.Identity)
	return identity, ok
}
