package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"hadiscover/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IndexRunner starts a background indexing run; false means one is already
// in progress. *services.Scheduler implements it.
type IndexRunner interface {
	Trigger(ctx context.Context) bool
}

// IndexHandler exposes the manual reindex trigger outside production.
type IndexHandler struct {
	runner     IndexRunner
	trigger    *services.IndexTrigger
	production bool
	// runCtx outlives the request; background runs stop when it is cancelled.
	runCtx context.Context
	logger *logrus.Logger
	now    func() time.Time
}

func NewIndexHandler(runCtx context.Context, runner IndexRunner, trigger *services.IndexTrigger, production bool, logger *logrus.Logger) *IndexHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if trigger == nil {
		trigger = services.NewIndexTrigger(services.DefaultTriggerCooldown)
	}
	return &IndexHandler{
		runner:     runner,
		trigger:    trigger,
		production: production,
		runCtx:     runCtx,
		logger:     logger,
		now:        time.Now,
	}
}

// Index POST /index
func (h *IndexHandler) Index(c *gin.Context) {
	if h.production {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Detail: "Manual indexing is not available in production. Indexing runs automatically every hour.",
			Error:  "FORBIDDEN",
		})
		return
	}

	if wait, ok := h.trigger.TryStart(h.now()); !ok {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Detail: fmt.Sprintf("Rate limit exceeded. Please wait %s before triggering another indexing run.", services.FormatWait(wait)),
			Error:  "RATE_LIMITED",
		})
		return
	}

	if !h.runner.Trigger(h.runCtx) {
		c.JSON(http.StatusOK, MessageResponse{Message: "Indexing already in progress", Started: false})
		return
	}
	h.logger.WithField("client_ip", c.ClientIP()).Info("Manual indexing run started")
	c.JSON(http.StatusOK, MessageResponse{Message: "Indexing started in background", Started: true})
}

func RegisterIndexRoutes(r *gin.RouterGroup, h *IndexHandler) {
	r.POST("/index", h.Index)
}
