package dashboard

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/provider-api/internal/handler"
	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/internal/model"
)

type Service interface {
	Generate(ctx context.Context, providerID string, req model.DashboardRequest) (model.DashboardLinks, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/member_dashboards", h.MemberDashboards)
}

func (h *Handler) MemberDashboards(c *gin.Context) {
	var req model.DashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(handler.BindError(err))
		return
	}

	links, err := h.service.Generate(c.Request.Context(), middleware.ProviderID(c), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, links)
}
