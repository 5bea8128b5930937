package handlers

import (
	"context"

	"hadiscover/internal/config"
	"hadiscover/internal/middleware"
	"hadiscover/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// RouterDeps carries what SetupRouter wires into the handlers.
type RouterDeps struct {
	Config  *config.Config
	DB      *gorm.DB
	Search  *services.SearchService
	Runner  IndexRunner
	Trigger *services.IndexTrigger
	// RunCtx bounds background indexing runs started over HTTP.
	RunCtx  context.Context
	Version string
	Logger  *logrus.Logger
}

// APIPrefix returns the group the API routes live under. A configured root
// path means a proxy already strips its own prefix, so routes sit at "/".
func APIPrefix(cfg *config.Config) string {
	if cfg.Server.RootPath != "" {
		return "/"
	}
	return "/api/v1"
}

func SetupRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if deps.RunCtx == nil {
		deps.RunCtx = context.Background()
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimiting))
	if cfg.Monitoring.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	health := NewHealthHandler(deps.DB, deps.Version)
	router.GET("/", health.Root)

	api := router.Group(APIPrefix(cfg))
	{
		RegisterHealthRoutes(api, health)
		RegisterSearchRoutes(api, NewSearchHandler(deps.Search, deps.Logger))
		RegisterIndexRoutes(api, NewIndexHandler(deps.RunCtx, deps.Runner, deps.Trigger, cfg.Server.IsProduction(), deps.Logger))
	}
	return router
}
