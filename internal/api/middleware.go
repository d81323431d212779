package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/metrics"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
	"github.com/Gopher0727/BirthdayBox/utils/ratelimit"
)

type MiddlewareManager struct {
	rateLimiter  ratelimit.Limiter
	rateLimitCfg config.RateLimitConfig
	logger       *logger.Logger
}

// NewMiddlewareManager builds the shared middleware. Without a Redis client
// rate limiting is disabled.
func NewMiddlewareManager(rdb *redis.Client, rateLimitCfg config.RateLimitConfig, log *logger.Logger) *MiddlewareManager {
	m := &MiddlewareManager{
		rateLimitCfg: rateLimitCfg,
		logger:       log.Named("http"),
	}
	if rdb != nil {
		// fail-open: a Redis outage must not take the API down
		m.rateLimiter = ratelimit.NewTokenBucketLimiter(rdb, log.Logger, true)
	}
	return m
}

// TraceID propagates X-Request-ID, generating one when absent.
func (m *MiddlewareManager) TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(logger.TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = logger.NewTraceID()
		}
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))
		c.Header(logger.TraceHeader, traceID)
		c.Next()
	}
}

func (m *MiddlewareManager) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(statusCode)).Inc()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		ctx := c.Request.Context()
		switch {
		case statusCode >= 500:
			m.logger.ErrorContext(ctx, "server error", fields...)
		case statusCode >= 400:
			m.logger.WarnContext(ctx, "client error", fields...)
		default:
			m.logger.InfoContext(ctx, "request completed", fields...)
		}
	}
}

func (m *MiddlewareManager) CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", logger.TraceHeader},
		ExposeHeaders:   []string{logger.TraceHeader, "Retry-After"},
		MaxAge:          12 * time.Hour,
	})
}

func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.ErrorContext(c.Request.Context(), "panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "something went wrong, please try again",
				})
			}
		}()

		c.Next()
	}
}

// RateLimit applies the endpoint group's per-minute limit per client IP.
func (m *MiddlewareManager) RateLimit(endpoint string) gin.HandlerFunc {
	if m.rateLimiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	rule := ratelimit.RuleForEndpoint(endpoint, m.rateLimitCfg)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := fmt.Sprintf("ip:%s:%s", c.ClientIP(), endpoint)

		allowed, err := m.rateLimiter.Allow(ctx, key, rule.Limit, rule.Window)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining, err := m.rateLimiter.GetRemaining(ctx, key, rule.Limit, rule.Window)
		if err == nil {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		if !allowed {
			retryAfter := int(ratelimit.RetryAfter(time.Now(), rule.Window).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests, please slow down",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
