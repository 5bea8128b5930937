package middleware

import (
	"net/http"
	"strings"

	"hadiscover/internal/config"

	"github.com/gin-gonic/gin"
)

const (
	defaultCORSMethods = "GET, POST, OPTIONS"
	defaultCORSHeaders = "Content-Type, Accept, Authorization, Origin, X-Requested-With"
)

// CORS sets the cross-origin headers from config and answers preflight
// requests with 204. A disabled config still allows any origin so the static
// frontend can be served from another host.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins, methods, headers := "*", defaultCORSMethods, defaultCORSHeaders
	if cfg.Enabled {
		if len(cfg.AllowedOrigins) > 0 {
			origins = strings.Join(cfg.AllowedOrigins, ", ")
		}
		if len(cfg.AllowedMethods) > 0 {
			methods = strings.Join(cfg.AllowedMethods, ", ")
		}
		if len(cfg.AllowedHeaders) > 0 {
			headers = strings.Join(cfg.AllowedHeaders, ", ")
		}
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Allow-Methods", methods)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
