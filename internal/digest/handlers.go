package digest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/muilab/notigpt/internal/errors"
	"github.com/muilab/notigpt/internal/logger"
)

// Handler serves digest runs and history.
type Handler struct {
	pipeline *Pipeline
	logger   *logger.Logger
}

// NewHandler creates a digest handler.
func NewHandler(pipeline *Pipeline, logger *logger.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// RegisterRoutes mounts /digests under group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	digests := group.Group("/digests")
	{
		digests.GET("/latest", h.Latest)
		digests.POST("/:mode", h.Run)
	}
}

// Run handles POST /digests/:mode. The response is the full digest including
// per-chunk results; degraded digests are still 200.
func (h *Handler) Run(c *gin.Context) {
	ctx := c.Request.Context()
	mode := Mode(c.Param("mode"))

	d, err := h.pipeline.Run(ctx, mode)
	if err != nil {
		h.logger.WithContext(ctx).Error("digest run failed",
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to build digest", apierrors.Detail(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"digest":   d,
		"degraded": d.Degraded(),
	})
}

// Latest handles GET /digests/latest?mode=summarize.
func (h *Handler) Latest(c *gin.Context) {
	ctx := c.Request.Context()
	mode := Mode(c.DefaultQuery("mode", string(ModeSummarize)))

	d, err := h.pipeline.Latest(ctx, mode)
	if errors.Is(err, ErrNoDigest) {
		apierrors.AbortWithNotFound(c, "no digest for mode", map[string]interface{}{"mode": mode})
		return
	}
	if err != nil {
		h.logger.WithContext(ctx).Error("failed to load latest digest", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to load digest", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"digest": d})
}
