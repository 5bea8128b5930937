package handlers

import (
	"context"
	"net/http"
	"time"

	"hadiscover/internal/database"
	"hadiscover/internal/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler answers liveness, readiness and metrics probes.
type HealthHandler struct {
	db      *gorm.DB
	version string
	started time.Time
}

func NewHealthHandler(db *gorm.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, started: time.Now()}
}

// Root GET /
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "HA Discover API", "version": h.version})
}

// Health GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready GET /ready reports 503 while the database is unreachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "database": "not initialized"})
		return
	}
	if err := database.Ping(ctx, h.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "database": "ok"})
}

// Metrics GET /metrics
func (h *HealthHandler) Metrics(c *gin.Context) {
	total, byPrefix := metrics.RateLimitSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"rate_limit": gin.H{
			"dropped_total": total,
			"by_prefix":     byPrefix,
		},
		"indexing": metrics.IndexRunSnapshot(),
	})
}

func RegisterHealthRoutes(r *gin.RouterGroup, h *HealthHandler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Metrics)
}
