// Package cache fronts sender profile lookups with Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"school-chat/internal/messaging"
	"school-chat/internal/models"
)

const keyPrefix = "school_chat:profile:"

// ProfileCache serves public profiles from Redis and falls back to next on a miss
// or when Redis is unavailable.
type ProfileCache struct {
	rdb    redis.UniversalClient
	next   messaging.ProfileSource
	ttl    time.Duration
	logger *zap.Logger
}

// Options parses a redis:// URL. An empty URL returns nil options.
func Options(redisURL string) (*redis.Options, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// NewProfileCache wraps next. A nil rdb disables caching.
func NewProfileCache(rdb redis.UniversalClient, next messaging.ProfileSource, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileCache{rdb: rdb, next: next, ttl: ttl, logger: logger}
}

func key(id int) string { return keyPrefix + strconv.Itoa(id) }

func (c *ProfileCache) PublicProfiles(ctx context.Context, ids []int) (map[int]models.PublicProfile, error) {
	if c.rdb == nil || len(ids) == 0 {
		return c.next.PublicProfiles(ctx, ids)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Debug("profile cache read failed", zap.Error(err))
		return c.next.PublicProfiles(ctx, ids)
	}

	out := make(map[int]models.PublicProfile, len(ids))
	var misses []int
	for i, v := range vals {
		raw, ok := v.(string)
		var p models.PublicProfile
		if !ok || json.Unmarshal([]byte(raw), &p) != nil {
			misses = append(misses, ids[i])
			continue
		}
		out[ids[i]] = p
	}
	if len(misses) == 0 {
		return out, nil
	}

	loaded, err := c.next.PublicProfiles(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := c.rdb.Pipeline()
	for id, p := range loaded {
		out[id] = p
		if b, err := json.Marshal(p); err == nil {
			pipe.Set(ctx, key(id), b, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug("profile cache write failed", zap.Error(err))
	}
	return out, nil
}
