package member

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/provider-api/internal/handler"
	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/service/member"
)

type Service interface {
	Lookup(ctx context.Context, providerID string, q model.MemberQuery) (*member.Result, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/v1/member/get", h.GetMember)
}

// GetMember answers with a member record, or with the provider's name when
// looked up by provider_id.
func (h *Handler) GetMember(c *gin.Context) {
	var q model.MemberQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Error(handler.BindError(err))
		return
	}

	result, err := h.service.Lookup(c.Request.Context(), middleware.ProviderID(c), q)
	if err != nil {
		c.Error(err)
		return
	}

	if result.Provider != nil {
		c.JSON(http.StatusOK, result.Provider)
		return
	}
	c.JSON(http.StatusOK, result.Member)
}
