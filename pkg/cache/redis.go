package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared backend keeping the response, project, and
// identity tiers coherent across gateway replicas. Every key is stored
// under an optional namespace prefix so several gateways (or a gateway
// and its staging twin) can share one Redis without colliding; the
// namespace is applied on the way in and stripped on the way out, so
// callers only ever see tier-level keys.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	prefix     string // "" or "<namespace>:"
}

// NewRedisCache connects and pings the shared store; a Redis that is
// down at startup is a configuration error, not something to limp past.
func NewRedisCache(opts *Options) (*RedisCache, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	poolSize := opts.RedisPoolSize
	if poolSize <= 0 {
		poolSize = DefaultOptions().RedisPoolSize
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := ""
	if opts.Namespace != "" {
		prefix = opts.Namespace + ":"
	}

	return &RedisCache{
		client:     client,
		defaultTTL: opts.DefaultTTL,
		prefix:     prefix,
	}, nil
}

// ns maps a caller key into the namespaced keyspace.
func (c *RedisCache) ns(key string) string {
	return c.prefix + key
}

// unns maps a stored key back to the caller's view.
func (c *RedisCache) unns(key string) string {
	return strings.TrimPrefix(key, c.prefix)
}

// effectiveTTL substitutes the default for "no TTL given". When the
// default is also zero the entry is written without an expiry.
func (c *RedisCache) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return c.defaultTTL
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.ns(key)).Bytes()
	switch {
	case err == nil:
		return val, nil
	case errors.Is(err, redis.Nil):
		return nil, ErrKeyNotFound
	default:
		return nil, err
	}
}

func (c *RedisCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	// One round trip for value + remaining TTL.
	pipe := c.client.Pipeline()
	getCmd := pipe.Get(ctx, c.ns(key))
	ttlCmd := pipe.TTL(ctx, c.ns(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	val, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	ttl := ttlCmd.Val()
	if ttl < 0 { // -1 no expiry, -2 vanished between the two commands
		ttl = 0
	}
	return val, ttl, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.ns(key), value, c.effectiveTTL(ttl)).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.ns(key)).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.ns(key)).Result()
	return n > 0, err
}

func (c *RedisCache) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	nsKeys := make([]string, len(keys))
	for i, k := range keys {
		nsKeys[i] = c.ns(k)
	}

	vals, err := c.client.MGet(ctx, nsKeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, val := range vals {
		if s, ok := val.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (c *RedisCache) MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	// MSET has no per-key TTL, so a pipeline of SETs it is.
	ttl = c.effectiveTTL(ttl)
	pipe := c.client.Pipeline()
	for key, value := range entries {
		pipe.Set(ctx, c.ns(key), value, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) MDelete(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	nsKeys := make([]string, len(keys))
	for i, k := range keys {
		nsKeys[i] = c.ns(k)
	}
	return c.client.Del(ctx, nsKeys...).Result()
}

// Keys walks the namespaced keyspace with SCAN rather than KEYS, so an
// operational sweep does not stall the shared store other replicas are
// serving traffic through.
func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := c.client.Scan(ctx, 0, c.ns(pattern), 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, c.unns(iter.Val()))
	}
	return out, iter.Err()
}

func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := c.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	return c.MDelete(ctx, keys)
}

func (c *RedisCache) Stats(ctx context.Context) (*Stats, error) {
	info, err := c.client.Info(ctx, "stats", "memory").Result()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		KeysByPrefix: make(map[string]int64),
		Backend:      BackendRedis,
	}
	stats.Hits = infoCounter(info, "keyspace_hits")
	stats.Misses = infoCounter(info, "keyspace_misses")
	stats.MemoryBytes = infoCounter(info, "used_memory")
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	if c.prefix == "" {
		// Whole keyspace is ours.
		if n, err := c.client.DBSize(ctx).Result(); err == nil {
			stats.TotalKeys = n
		}
		return stats, nil
	}

	// Namespaced: count (and bucket by tier) only our own keys.
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.TotalKeys++
		stats.KeysByPrefix[extractPrefix(c.unns(iter.Val()))]++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// infoCounter pulls one "name:value" counter out of an INFO blob;
// zero when absent, since counters are advisory.
func infoCounter(info, name string) int64 {
	for _, line := range strings.Split(info, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), name+":")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Clear removes this gateway's keys. Without a namespace that is the
// whole database; with one, only the namespaced slice — never another
// tenant's keys.
func (c *RedisCache) Clear(ctx context.Context) error {
	if c.prefix == "" {
		return c.client.FlushDB(ctx).Err()
	}
	_, err := c.DeleteByPattern(ctx, "*")
	return err
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
