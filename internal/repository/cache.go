package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/internal/model"
)

const (
	messageCacheKeyPrefix = "birthday:message:"
	defaultMessageTTL     = 24 * time.Hour
)

// CachedMessageRepository is a read-through redis cache in front of another
// message repository. Messages are write-once so entries never need
// invalidation, only expiry. Redis failures degrade to the inner repository.
type CachedMessageRepository struct {
	next   IMessageRepository
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedMessageRepository(next IMessageRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedMessageRepository {
	if ttl <= 0 {
		ttl = defaultMessageTTL
	}
	return &CachedMessageRepository{next: next, redis: rdb, ttl: ttl, logger: logger}
}

func messageCacheKey(id int64) string {
	return fmt.Sprintf("%s%d", messageCacheKeyPrefix, id)
}

func (r *CachedMessageRepository) Create(ctx context.Context, message *model.Message) error {
	if err := r.next.Create(ctx, message); err != nil {
		return err
	}
	r.fill(ctx, message)
	return nil
}

func (r *CachedMessageRepository) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	val, err := r.redis.Get(ctx, messageCacheKey(id)).Bytes()
	switch {
	case err == nil:
		var message model.Message
		if json.Unmarshal(val, &message) == nil {
			return &message, nil
		}
		r.logger.Warn("dropping corrupt message cache entry", zap.Int64("message_id", id))
		r.redis.Del(ctx, messageCacheKey(id))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("message cache read failed", zap.Int64("message_id", id), zap.Error(err))
	}

	message, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, message)
	return message, nil
}

func (r *CachedMessageRepository) fill(ctx context.Context, message *model.Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, messageCacheKey(message.ID), data, r.ttl).Err(); err != nil {
		r.logger.Warn("message cache write failed", zap.Int64("message_id", message.ID), zap.Error(err))
	}
}
