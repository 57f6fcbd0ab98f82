package drawer

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apierrors "github.com/muilab/notigpt/internal/errors"
	"github.com/muilab/notigpt/internal/logger"
)

// Handler handles HTTP requests for the notification drawer.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new drawer handler.
func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the drawer endpoints on group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	notifications := group.Group("/notifications")
	{
		notifications.POST("", h.Ingest)
		notifications.GET("", h.List)
		notifications.DELETE("", h.Clear)
		notifications.POST("/seen", h.MarkSeen)
		notifications.GET("/:sbnKey", h.Get)
		notifications.DELETE("/:sbnKey", h.Dismiss)
	}
}

// Ingest handles POST /api/v1/notifications
func (h *Handler) Ingest(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("drawer-handler")

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to bind request", slog.String("error", err.Error()))
		apierrors.AbortWithBadRequest(c, "invalid request body", apierrors.Detail(err))
		return
	}

	unit, err := h.service.Ingest(c.Request.Context(), req)
	if err != nil {
		log.Error("failed to ingest notification",
			slog.String("sbn_key", req.SbnKey),
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to ingest notification", apierrors.Detail(err))
		return
	}

	c.JSON(http.StatusCreated, unit)
}

// List handles GET /api/v1/notifications?page=&page_size=
func (h *Handler) List(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		apierrors.AbortWithBadRequest(c, "invalid page", apierrors.Detail(err))
		return
	}
	pageSize, err := queryInt(c, "page_size", DefaultPageSize)
	if err != nil {
		apierrors.AbortWithBadRequest(c, "invalid page_size", apierrors.Detail(err))
		return
	}

	result, err := h.service.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to list notifications", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to list notifications", apierrors.Detail(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

// Get handles GET /api/v1/notifications/:sbnKey
func (h *Handler) Get(c *gin.Context) {
	unit, err := h.service.Get(c.Request.Context(), c.Param("sbnKey"))
	if IsNotFound(err) {
		apierrors.AbortWithNotFound(c, "notification not found", nil)
		return
	}
	if err != nil {
		apierrors.AbortWithInternal(c, "failed to load notification", apierrors.Detail(err))
		return
	}

	c.JSON(http.StatusOK, unit)
}

// Dismiss handles DELETE /api/v1/notifications/:sbnKey
func (h *Handler) Dismiss(c *gin.Context) {
	if err := h.service.Dismiss(c.Request.Context(), c.Param("sbnKey")); err != nil {
		apierrors.AbortWithInternal(c, "failed to dismiss notification", apierrors.Detail(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/notifications
func (h *Handler) Clear(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context()); err != nil {
		apierrors.AbortWithInternal(c, "failed to clear notifications", apierrors.Detail(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkSeen handles POST /api/v1/notifications/seen
func (h *Handler) MarkSeen(c *gin.Context) {
	n, err := h.service.MarkSeen(c.Request.Context())
	if err != nil {
		apierrors.AbortWithInternal(c, "failed to mark notifications seen", apierrors.Detail(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
