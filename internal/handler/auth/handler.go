package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/internal/model"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
)

// TokenIssuer signs bearer tokens for a provider.
type TokenIssuer interface {
	Issue(providerID string) (*model.TokenResponse, error)
}

type Handler struct {
	issuer TokenIssuer
}

func NewHandler(issuer TokenIssuer) *Handler {
	return &Handler{issuer: issuer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/v1/auth/token", h.ExchangeToken)
}

// ExchangeToken trades an API key for a short lived bearer token. A bearer
// token cannot be used to mint another one.
func (h *Handler) ExchangeToken(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.Error(apperrors.Unauthorized(nil))
		return
	}
	if identity.Scheme != model.SchemeAPIKey {
		c.Error(apperrors.Forbidden("token exchange requires an api key"))
		return
	}

	token, err := h.issuer.Issue(identity.ProviderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, token)
}
