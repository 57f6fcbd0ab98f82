package notifications

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/muilab/notigpt/internal/errors"
	"github.com/muilab/notigpt/internal/logger"
)

// Handler serves device registration.
type Handler struct {
	tokens *TokenStore
	logger *logger.Logger
}

// NewHandler creates a device registration handler.
func NewHandler(tokens *TokenStore, logger *logger.Logger) *Handler {
	return &Handler{
		tokens: tokens,
		logger: logger,
	}
}

// RegisterRoutes mounts /devices under group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	devices := group.Group("/devices")
	{
		devices.POST("", h.Register)
		devices.DELETE("/:token", h.Remove)
	}
}

// Register handles POST /devices.
func (h *Handler) Register(c *gin.Context) {
	var device Device
	if err := c.ShouldBindJSON(&device); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid device registration", apierrors.Detail(err))
		return
	}

	if err := h.tokens.Register(c.Request.Context(), device); err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to register device",
			slog.String("device_id", device.DeviceID),
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to register device", nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"registered": true})
}

// Remove handles DELETE /devices/:token.
func (h *Handler) Remove(c *gin.Context) {
	if err := h.tokens.Remove(c.Request.Context(), c.Param("token")); err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to remove device",
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to remove device", nil)
		return
	}

	c.Status(http.StatusNoContent)
}
