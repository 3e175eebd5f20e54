// Package responsecache caches whitelisted, pure RPC method responses
// keyed by (chain id, method, params hash). Writes happen only
// after a successful, JSON-RPC-validated dispatch; reads are transparent
// and fall through to live dispatch on a backing-store failure.
package responsecache

import (
	"context"
	"errors"
	"time"

	"gateway/pkg/cache"
	"gateway/pkg/config"
	"gateway/pkg/logger"
	"gateway/pkg/metrics"
)

const tier = "response"

// Entry is a cached response's bytes plus the media type it was served
// with.
type Entry struct {
	Body      []byte `json:"body"`
	MediaType string `json:"media_type"`
}

// Cache wraps a backing cache.Cache with the response-cache's whitelist
// and per-method TTLs (see DESIGN.md for the default table rationale).
type Cache struct {
	backend cache.Cache
	methods map[string]time.Duration
	enabled bool
}

// New constructs the response cache. backend may be nil, in which case the
// cache is a no-op (every lookup misses, every write is dropped) — used
// when response_cache.enabled is false.
func New(backend cache.Cache, cfg config.ResponseCacheConfig) *Cache {
	methods := cfg.Methods
	if methods == nil {
		methods = DefaultMethods()
	}
	return &Cache{backend: backend, methods: methods, enabled: cfg.Enabled && backend != nil}
}

// DefaultMethods is the conservative default whitelist of pure,
// deterministic RPC methods and their TTLs (DESIGN.md Open Question
// resolution #2). eth_blockNumber is deliberately excluded: its result
// changes too quickly to be a pure function of (chain, method, params).
func DefaultMethods() map[string]time.Duration {
	return map[string]time.Duration{
		"eth_chainId":               5 * time.Minute,
		"net_version":               5 * time.Minute,
		"eth_getBlockByHash":        30 * time.Minute,
		"eth_getTransactionByHash":  30 * time.Second,
		"eth_getTransactionReceipt": 30 * time.Second,
		"eth_getCode":               10 * time.Minute,
		"solana_getGenesisHash":     10 * time.Minute,
	}
}

// TTL returns the configured TTL for method and whether it is cacheable
// at all.
func (c *Cache) TTL(method string) (time.Duration, bool) {
	ttl, ok := c.methods[method]
	return ttl, ok
}

// Cacheable reports whether method is eligible for caching.
func (c *Cache) Cacheable(method string) bool {
	_, ok := c.methods[method]
	return c.enabled && ok
}

// Get performs a transparent read. A backend error is treated as a miss
// (fall through to live dispatch), with a structured warning.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}

	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			logger.Log.Warn("response cache read failed, falling through to live dispatch", "error", err, "key", key)
		}
		metrics.Get().RecordCache(tier, false)
		return nil, false
	}

	entry, err := decode(raw)
	if err != nil {
		logger.Log.Warn("response cache entry corrupt, treating as miss", "error", err, "key", key)
		metrics.Get().RecordCache(tier, false)
		return nil, false
	}

	metrics.Get().RecordCache(tier, true)
	return entry, true
}

// Put writes an entry for method with its configured TTL. Invariant: the
// caller must only call Put after a 200-class reply that passed JSON-RPC
// result validation; this package does not re-validate that.
func (c *Cache) Put(ctx context.Context, key, method string, entry *Entry) {
	if !c.enabled {
		return
	}
	ttl, ok := c.methods[method]
	if !ok {
		return
	}

	raw, err := encode(entry)
	if err != nil {
		logger.Log.Warn("failed to encode response cache entry", "error", err, "key", key)
		return
	}

	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		logger.Log.Warn("response cache write failed", "error", err, "key", key)
	}
}
