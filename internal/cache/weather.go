// Package cache keeps recent weather observations in Redis so repeated
// predictions for the same district do not each hit the weather provider.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"cropyield/internal/types"
)

const keyPrefix = "weather:v1:"

// DefaultTTL is how long an observation is served from cache.
const DefaultTTL = 10 * time.Minute

// Store is the subset of the Redis client the cache uses. *redis.Client
// satisfies it.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// WeatherCache stores observations keyed by location string.
type WeatherCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewWeatherCache creates a WeatherCache. A non-positive ttl uses DefaultTTL.
func NewWeatherCache(store Store, ttl time.Duration, logger *slog.Logger) *WeatherCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherCache{store: store, ttl: ttl, logger: logger}
}

// Get returns a cached observation. A miss and a Redis failure both report
// false; failures are logged.
func (c *WeatherCache) Get(ctx context.Context, location string) (*types.WeatherObservation, bool) {
	data, err := c.store.Get(ctx, cacheKey(location)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "weather cache read failed", "location", location, "error", err)
		}
		return nil, false
	}

	var obs types.WeatherObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		c.logger.WarnContext(ctx, "weather cache entry is corrupt", "location", location, "error", err)
		return nil, false
	}
	return &obs, true
}

// Put stores obs under location.
func (c *WeatherCache) Put(ctx context.Context, location string, obs *types.WeatherObservation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal weather observation: %w", err)
	}
	return c.store.Set(ctx, cacheKey(location), data, c.ttl).Err()
}

// Name implements core.HealthProbe.
func (c *WeatherCache) Name() string { return "redis" }

// Check implements core.HealthProbe.
func (c *WeatherCache) Check(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

func cacheKey(location string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(location))
}

// Upstream fetches weather on a cache miss.
type Upstream interface {
	CurrentWeather(ctx context.Context, location string) (*types.WeatherObservation, error)
}

// CachedWeatherProvider serves observations from the cache and collapses
// concurrent misses for the same location into one upstream call.
type CachedWeatherProvider struct {
	upstream Upstream
	cache    *WeatherCache
	group    singleflight.Group
	logger   *slog.Logger
}

// NewCachedWeatherProvider wraps upstream with cache.
func NewCachedWeatherProvider(upstream Upstream, cache *WeatherCache, logger *slog.Logger) *CachedWeatherProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedWeatherProvider{upstream: upstream, cache: cache, logger: logger}
}

// CurrentWeather implements prediction.WeatherProvider. Only successful
// upstream observations are cached.
func (p *CachedWeatherProvider) CurrentWeather(ctx context.Context, location string) (*types.WeatherObservation, error) {
	if obs, ok := p.cache.Get(ctx, location); ok {
		return obs, nil
	}

	v, err, _ := p.group.Do(cacheKey(location), func() (any, error) {
		obs, err := p.upstream.CurrentWeather(ctx, location)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Put(ctx, location, obs); err != nil {
			p.logger.WarnContext(ctx, "weather cache write failed", "location", location, "error", err)
		}
		return obs, nil
	})
	if err != nil {
		return nil, err
	}

	// Each caller gets its own copy of the shared result.
	obs := *v.(*types.WeatherObservation)
	return &obs, nil
}
