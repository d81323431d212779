// Package ratelimit throttles the generation-heavy endpoints with fixed-window
// counters kept in Redis, so limits hold across every API replica.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
)

const keyPrefix = "birthday:ratelimit"

// Endpoint groups that carry their own limit.
const (
	EndpointMessage  = "message"
	EndpointImage    = "image"
	EndpointExpand   = "expand"
	EndpointPurchase = "purchase"
	EndpointAPI      = "api"
)

type Limiter interface {
	// Allow consumes one token from key's current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	AllowN(ctx context.Context, key string, n int, limit int, window time.Duration) (bool, error)
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// TokenBucketLimiter refills a key's whole bucket at the start of every
// window. Counting is a single INCRBY, so concurrent replicas never
// over-admit.
type TokenBucketLimiter struct {
	rdb      *redis.Client
	logger   *zap.Logger
	failOpen bool
}

// NewTokenBucketLimiter returns a limiter. With failOpen set, requests are
// admitted while Redis is unreachable.
func NewTokenBucketLimiter(rdb *redis.Client, logger *zap.Logger, failOpen bool) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rdb:      rdb,
		logger:   logger,
		failOpen: failOpen,
	}
}

func (l *TokenBucketLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.AllowN(ctx, key, 1, limit, window)
}

func (l *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, errors.New("rate limit window must be positive")
	}
	bucket := bucketKey(key, time.Now(), window)

	pipe := l.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, bucket, int64(n))
	pipe.Expire(ctx, bucket, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit store unavailable, admitting request",
				zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	if count > int64(limit) {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", limit),
		)
		return false, nil
	}
	return true, nil
}

func (l *TokenBucketLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := l.rdb.Get(ctx, bucketKey(key, time.Now(), window)).Int()
	if errors.Is(err, redis.Nil) {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read rate limit counter: %w", err)
	}
	return max(limit-count, 0), nil
}

// RetryAfter is the time left until the window containing now closes.
func RetryAfter(now time.Time, window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	elapsed := time.Duration(now.UnixMilli()%window.Milliseconds()) * time.Millisecond
	return window - elapsed
}

func bucketKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, key, now.UnixMilli()/window.Milliseconds())
}

type Rule struct {
	Limit  int
	Window time.Duration
}

// RuleForEndpoint maps an endpoint group to its per-minute limit. Unknown
// groups and unset limits fall back to the general API limit.
func RuleForEndpoint(endpoint string, cfg config.RateLimitConfig) Rule {
	limit := cfg.APIPerMinute
	switch endpoint {
	case EndpointMessage:
		limit = cfg.MessagePerMinute
	case EndpointImage:
		limit = cfg.ImagePerMinute
	case EndpointExpand:
		limit = cfg.ExpandPerMinute
	case EndpointPurchase:
		limit = cfg.PurchasePerMinute
	}
	if limit <= 0 {
		limit = cfg.APIPerMinute
	}
	if limit <= 0 {
		limit = 100
	}
	return Rule{Limit: limit, Window: time.Minute}
}
