package area

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/munchies-pricing/internal/tenant"
)

const cacheKey = "areas:v1"

// Cached keeps the area list in Redis for TTL and resolves slugs from it.
// Redis failures fall through to the wrapped source.
type Cached struct {
	Source Source
	Redis  *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

func (c *Cached) List(ctx context.Context) ([]Area, error) {
	if c == nil || c.Source == nil {
		return nil, errors.New("area cache not configured")
	}
	key := tenant.PrefixKey(tenant.Scope(ctx), cacheKey)
	if areas, ok := c.get(ctx, key); ok {
		return areas, nil
	}
	areas, err := c.Source.List(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, areas)
	return areas, nil
}

func (c *Cached) Get(ctx context.Context, slug string) (Area, error) {
	areas, err := c.List(ctx)
	if err != nil {
		return Area{}, err
	}
	return findBySlug(areas, slug)
}

// Invalidate drops the cached list for the tenant in ctx.
func (c *Cached) Invalidate(ctx context.Context) error {
	if c == nil || c.Redis == nil {
		return nil
	}
	return c.Redis.Del(ctx, tenant.PrefixKey(tenant.Scope(ctx), cacheKey)).Err()
}

func (c *Cached) get(ctx context.Context, key string) ([]Area, bool) {
	if c.Redis == nil || c.TTL <= 0 {
		return nil, false
	}
	data, err := c.Redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.Logger.Warn().Err(err).Str("key", key).Msg("area_cache_read_failed")
		}
		return nil, false
	}
	var areas []Area
	if err := json.Unmarshal(data, &areas); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("area_cache_decode_failed")
		return nil, false
	}
	return areas, true
}

func (c *Cached) set(ctx context.Context, key string, areas []Area) {
	if c.Redis == nil || c.TTL <= 0 {
		return
	}
	data, err := json.Marshal(areas)
	if err != nil {
		return
	}
	if err := c.Redis.Set(ctx, key, data, c.TTL).Err(); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("area_cache_write_failed")
	}
}
