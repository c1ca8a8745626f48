// Package ratelimit enforces a fixed quota of requests per source address per
// time window.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/wardrobe-scan/internal/apperror"
)

// KindRateLimited is reported when a caller exhausted its quota.
const KindRateLimited apperror.Kind = "rate_limited"

const keyPrefix = "ratelimit:"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter applies one quota per key per window.
type Limiter struct {
	counter Counter
	quota   int64
	window  time.Duration
}

// NewLimiter allows quota requests per key in each window.
func NewLimiter(counter Counter, quota int64, window time.Duration) *Limiter {
	return &Limiter{counter: counter, quota: quota, window: window}
}

// Allow counts one request for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.counter.Increment(ctx, keyPrefix+key, l.window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Limit: l.quota, Remaining: l.quota - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if count > l.quota {
		d.RetryAfter = ttl
		return d, nil
	}
	d.Allowed = true
	return d, nil
}

// Middleware rejects requests over quota before any handler runs. Counter
// failures let the request through.
func Middleware(l *Limiter, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("ratelimit")

	return func(c *gin.Context) {
		ip := c.ClientIP()
		d, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.Error(err), zap.String("client_ip", ip))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			logger.Info("rate limit exceeded", zap.String("client_ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperror.Response{
				Error:   KindRateLimited,
				Details: "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}
