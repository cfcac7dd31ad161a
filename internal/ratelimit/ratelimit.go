// Package ratelimit applies a per-caller token bucket in front of the
// mutating endpoints.
package ratelimit

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per caller key. Buckets refill at the
// configured requests-per-minute and allow a burst of the same size.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rpm     int
}

// New returns a Limiter admitting rpm requests per minute per key. rpm <= 0
// disables limiting.
func New(rpm int) *Limiter {
	return &Limiter{buckets: map[string]*rate.Limiter{}, rpm: rpm}
}

// Admit reports whether the caller identified by key may proceed.
func (l *Limiter) Admit(key string) bool {
	if l.rpm <= 0 {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.rpm)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// Middleware rejects over-limit callers with 429. Callers are keyed by the
// forwarded client address.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Admit(clientKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		return xff
	}
	return c.ClientIP()
}
