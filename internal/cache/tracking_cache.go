// Package cache holds a best-effort Redis cache of tracking records for
// status polling. Every failure here is a logged warning, never a control-flow
// change: a cold or broken cache only means the poll hits Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/purgeworks/deletion-engine/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTTL     = 30 * time.Second
	trackingPrefix = "deletion:tracking:"
	aliasPrefix    = "deletion:idem:"
)

// TrackingCache caches tracking records by tracking id, with an alias from the
// idempotency key so async consumers can invalidate without knowing the id.
type TrackingCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewTrackingCache(client *goredis.Client, ttl time.Duration, logger *zap.Logger) (*TrackingCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TrackingCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *TrackingCache) GetTracking(ctx context.Context, trackingID string) (*domain.DeletionTracking, bool) {
	payload, err := c.client.Get(ctx, trackingKey(trackingID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("tracking cache read failed",
			zap.String("trackingId", trackingID),
			zap.Error(err),
		)
		return nil, false
	}

	var tracking domain.DeletionTracking
	if err := json.Unmarshal(payload, &tracking); err != nil {
		c.logger.Warn("tracking cache entry corrupt, dropping",
			zap.String("trackingId", trackingID),
			zap.Error(err),
		)
		_ = c.client.Del(ctx, trackingKey(trackingID)).Err()
		return nil, false
	}

	return &tracking, true
}

func (c *TrackingCache) SetTracking(ctx context.Context, t *domain.DeletionTracking) {
	if t == nil || t.ID == "" {
		return
	}

	payload, err := json.Marshal(t)
	if err != nil {
		c.logger.Warn("failed to marshal tracking record for cache", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, trackingKey(t.ID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("tracking cache write failed",
			zap.String("trackingId", t.ID),
			zap.Error(err),
		)
		return
	}

	if t.IdempotencyKey != "" {
		if err := c.client.Set(ctx, aliasKey(t.IdempotencyKey), t.ID, c.ttl).Err(); err != nil {
			c.logger.Warn("tracking cache alias write failed",
				zap.String("idempotencyKey", t.IdempotencyKey),
				zap.Error(err),
			)
		}
	}
}

// Invalidate accepts either a tracking id or an idempotency key and drops the
// cached record behind it.
func (c *TrackingCache) Invalidate(ctx context.Context, ref string) {
	if ref == "" {
		return
	}

	keys := []string{trackingKey(ref)}

	trackingID, err := c.client.Get(ctx, aliasKey(ref)).Result()
	if err == nil && trackingID != "" {
		keys = append(keys, trackingKey(trackingID), aliasKey(ref))
	} else if err != nil && !errors.Is(err, goredis.Nil) {
		c.logger.Warn("tracking cache alias read failed",
			zap.String("ref", ref),
			zap.Error(err),
		)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("tracking cache invalidation failed",
			zap.String("ref", ref),
			zap.Error(err),
		)
	}
}

func trackingKey(id string) string {
	return trackingPrefix + id
}

func aliasKey(key string) string {
	return aliasPrefix + key
}
