package message

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/provider-api/internal/handler"
	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/internal/model"
)

type Service interface {
	History(ctx context.Context, providerID string, filter model.MessageFilter) ([]*model.MessageHistory, error)
	Clear(ctx context.Context, providerID string, filter model.MessageFilter) (int64, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ask_alyf/get_message_history", h.GetMessageHistory)
	r.DELETE("/v1/apc/ask_alyf/clear_message_history", h.ClearMessageHistory)
}

func (h *Handler) GetMessageHistory(c *gin.Context) {
	var filter model.MessageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(handler.BindError(err))
		return
	}

	history, err := h.service.History(c.Request.Context(), middleware.ProviderID(c), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *Handler) ClearMessageHistory(c *gin.Context) {
	var filter model.MessageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(handler.BindError(err))
		return
	}

	deleted, err := h.service.Clear(c.Request.Context(), middleware.ProviderID(c), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": deleted}))
}
