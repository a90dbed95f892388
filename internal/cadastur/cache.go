package cadastur

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/entity"
)

const cacheKeyPrefix = "cadastur:guide:"

// CachedLookup is a read-through Redis cache in front of FindByCertificate.
// Searches are passed straight through. Misses are not cached. Redis
// failures fall back to the wrapped lookup.
type CachedLookup struct {
	Lookup
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewCachedLookup wraps next. A nil client returns next unchanged.
func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) Lookup {
	if client == nil {
		return next
	}
	return &CachedLookup{Lookup: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedLookup) FindByCertificate(ctx context.Context, raw string) (*entity.Guide, error) {
	canonical := entity.CanonicalCertificate(raw)
	if canonical == "" {
		return nil, nil
	}
	key := cacheKeyPrefix + canonical

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var g entity.Guide
		if uerr := json.Unmarshal(data, &g); uerr == nil {
			return &g, nil
		}
		c.logger.Warnw("discarding corrupt registry cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warnw("registry cache read failed", "key", key, "err", err)
	}

	g, err := c.Lookup.FindByCertificate(ctx, canonical)
	if err != nil || g == nil {
		return g, err
	}
	if data, err := json.Marshal(g); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warnw("registry cache write failed", "key", key, "err", err)
		}
	}
	return g, nil
}

// Flush drops every cached registry entry. Run it after an import.
func (c *CachedLookup) Flush(ctx context.Context) (int, error) {
	var n int
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, iter.Err()
}
