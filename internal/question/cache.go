package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/metrics"
)

const (
	defaultCachePrefix = "qcache"
	defaultCacheTTL    = 6 * time.Hour
)

// Cache is the Redis-backed queue of ready records per category. Each key
// is a list: producers RPUSH, consumers LPOP, so a record is handed out at
// most once even with many concurrent consumers.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCache(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *Cache {
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "question_cache").Logger(),
	}
}

func (c *Cache) key(k CacheKey) string {
	theme := k.Theme
	if theme == "" {
		theme = "-"
	}
	return strings.Join([]string{
		c.prefix,
		strings.ToLower(k.Language),
		k.GameMode,
		k.KnowledgeLevel,
		strings.ToLower(theme),
		strings.ToLower(k.Category),
	}, ":")
}

// Put appends rec to the queue for k. The caller validates first.
func (c *Cache) Put(ctx context.Context, k CacheKey, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cached record: %w", err)
	}
	key := c.key(k)
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Take removes and returns the oldest record for k. Storage failures are
// logged and reported as a miss.
func (c *Cache) Take(ctx context.Context, k CacheKey) (Record, bool) {
	key := c.key(k)
	data, err := c.client.LPop(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Error().Err(err).Str("key", key).Msg("cache take failed")
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return Record{}, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return rec, true
}

// Count reports the unconsumed records for k, or zero on storage failure.
func (c *Cache) Count(ctx context.Context, k CacheKey) int {
	key := c.key(k)
	n, err := c.client.LLen(ctx, key).Result()
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("cache count failed")
		return 0
	}
	return int(n)
}
