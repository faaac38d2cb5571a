package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/provider-api/internal/handler"
	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/internal/model"
)

type Service interface {
	UpdateConfig(ctx context.Context, providerID string, raw map[string]interface{}) error
	GetConfig(ctx context.Context, providerID string) ([]*model.ProviderConfigEntry, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/v1/apc/provider/config_update", h.UpdateConfig)
	r.GET("/v1/apc/provider/config", h.GetConfig)
}

// UpdateConfig acknowledges with 200 and no body.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.Error(handler.BindError(err))
		return
	}

	if err := h.service.UpdateConfig(c.Request.Context(), middleware.ProviderID(c), raw); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusOK)
}

// GetConfig returns the caller's stored settings as an item to value object.
func (h *Handler) GetConfig(c *gin.Context) {
	entries, err := h.service.GetConfig(c.Request.Context(), middleware.ProviderID(c))
	if err != nil {
		c.Error(err)
		return
	}

	out := make(map[model.ProviderConfigItem]json.RawMessage, len(entries))
	for _, e := range entries {
		out[e.Item] = e.Value
	}
	c.JSON(http.StatusOK, out)
}
