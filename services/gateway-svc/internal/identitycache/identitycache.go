// Package identitycache is a read-through cache in front of an
// ENS/name-resolution-style lookup. The lookup itself lives
// behind the Resolver; this package only owns the cache wrapper, keyed by
// (chain id, address), with hit/miss counters separately observable.
package identitycache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gateway/pkg/cache"
	"gateway/pkg/logger"
	"gateway/pkg/metrics"
)

const tier = "identity"

const negativeSentinel = "__no_identity__"

// Identity is the resolved name/avatar record for one (chain, address).
type Identity struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Resolver performs the actual name/avatar lookup on a cache miss. It
// returns (nil, nil) when the address genuinely has no identity record —
// distinct from a lookup error, which is propagated and never cached.
type Resolver func(ctx context.Context, chainID, address string) (*Identity, error)

// Cache is the identity/name read-through cache.
type Cache struct {
	backend     cache.Cache
	resolve     Resolver
	positiveTTL time.Duration
	negativeTTL time.Duration
}

// New constructs the identity cache. positiveTTL is typically long (names
// rarely change); negativeTTL short.
func New(backend cache.Cache, resolve Resolver, positiveTTL, negativeTTL time.Duration) *Cache {
	if positiveTTL <= 0 {
		positiveTTL = 24 * time.Hour
	}
	if negativeTTL <= 0 {
		negativeTTL = 5 * time.Minute
	}
	return &Cache{backend: backend, resolve: resolve, positiveTTL: positiveTTL, negativeTTL: negativeTTL}
}

// Lookup returns the identity for (chainID, address), or nil if none
// exists. A resolver error is propagated unchanged and never cached.
func (c *Cache) Lookup(ctx context.Context, chainID, address string) (*Identity, error) {
	key := cache.BuildIdentityCacheKey(chainID, address)

	if raw, err := c.backend.Get(ctx, key); err == nil {
		metrics.Get().RecordCache(tier, true)
		if string(raw) == negativeSentinel {
			return nil, nil
		}
		var id Identity
		if jsonErr := json.Unmarshal(raw, &id); jsonErr == nil {
			return &id, nil
		}
		logger.Log.Warn("identity cache entry corrupt, re-resolving", "chain_id", chainID, "address", address)
	} else if !errors.Is(err, cache.ErrKeyNotFound) {
		logger.Log.Warn("identity cache read failed, falling through to resolver", "error", err)
	}

	metrics.Get().RecordCache(tier, false)

	identity, err := c.resolve(ctx, chainID, address)
	if err != nil {
		return nil, err
	}

	if identity == nil {
		if err := c.backend.Set(ctx, key, []byte(negativeSentinel), c.negativeTTL); err != nil {
			logger.Log.Warn("identity negative-cache write failed", "error", err)
		}
		return nil, nil
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		logger.Log.Warn("failed to encode identity cache entry", "error", err)
		return identity, nil
	}
	if err := c.backend.Set(ctx, key, raw, c.positiveTTL); err != nil {
		logger.Log.Warn("identity cache write failed", "error", err)
	}
	return identity, nil
}
