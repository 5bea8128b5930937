package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"hadiscover/internal/config"
	"hadiscover/internal/metrics"

	"github.com/gin-gonic/gin"
)

// tokenBucket refills continuously at ratePerSec up to burst tokens.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	ratePerSec float64
	burst      float64
}

func newBucket(rpm, burst int) *tokenBucket {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm
	}
	return &tokenBucket{
		tokens:     float64(burst),
		lastRefill: time.Now(),
		ratePerSec: float64(rpm) / 60.0,
		burst:      float64(burst),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.ratePerSec
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// limiter holds one bucket per client key for a single path prefix.
type limiter struct {
	prefix string
	rpm    int
	burst  int

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

func newLimiter(prefix string, rpm, burst int) *limiter {
	return &limiter{prefix: prefix, rpm: rpm, burst: burst, buckets: make(map[string]*tokenBucket)}
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(l.rpm, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.allow()
}

func (l *limiter) matches(path string) bool {
	return l.prefix != "" && strings.HasPrefix(path, l.prefix)
}

// RateLimit applies per-client token buckets. The first enabled path override
// whose prefix matches the request path wins; everything else shares the
// global limit. Drops are counted in the metrics package under the prefix.
func RateLimit(rl config.RateLimitingConfig) gin.HandlerFunc {
	if !rl.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var paths []*limiter
	for _, p := range rl.Paths {
		if p.Enabled && p.RequestsPerMinute > 0 {
			paths = append(paths, newLimiter(p.Prefix, p.RequestsPerMinute, p.Burst))
		}
	}
	var global *limiter
	if rl.RequestsPerMinute > 0 {
		global = newLimiter("", rl.RequestsPerMinute, rl.Burst)
	}
	whitelist := make(map[string]struct{}, len(rl.WhitelistIPs))
	for _, ip := range rl.WhitelistIPs {
		whitelist[ip] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := whitelist[c.ClientIP()]; ok {
			c.Next()
			return
		}
		key := clientKey(c, rl.KeyHeader)

		l := global
		path := c.Request.URL.Path
		for _, pl := range paths {
			if pl.matches(path) {
				l = pl
				break
			}
		}
		if l == nil {
			c.Next()
			return
		}
		if !l.allow(key) {
			metrics.IncRateLimitDrop(l.prefix)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

// clientKey prefers the configured header (first hop for X-Forwarded-For) and
// falls back to the client IP.
func clientKey(c *gin.Context, header string) string {
	if header != "" {
		if v := c.GetHeader(header); v != "" {
			if strings.EqualFold(header, "X-Forwarded-For") {
				first, _, _ := strings.Cut(v, ",")
				return strings.TrimSpace(first)
			}
			return v
		}
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
