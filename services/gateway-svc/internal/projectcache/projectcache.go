// Package projectcache memoizes project metadata and quota flags fetched
// from the control-plane store, with TTL-bounded positive entries and a
// shorter-lived negative cache for unknown ids.
package projectcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gateway/pkg/apperror"
	"gateway/pkg/cache"
	"gateway/pkg/logger"
	"gateway/pkg/metrics"
	"gateway/services/gateway-svc/internal/store"
)

const tier = "project"

// negative is the sentinel value cached for an id the upstream store does
// not know about, distinguishing a genuine negative lookup from a cache
// miss (negative TTL is shorter so a typo recovers quickly).
const negativeSentinel = "__not_found__"

// Fetcher is the upstream lookup the cache falls through to on a miss — the
// control-plane store in this implementation (standing in for the
// external registry API).
type Fetcher interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
}

// Cache is the project data cache. Lookup order: in-process cache,
// then the upstream Fetcher. A shared (Redis) tier may be layered in by
// passing a cache.Cache backed by Redis as backend; this package does not
// distinguish in-process from shared, it only distinguishes cache from
// upstream.
type Cache struct {
	backend     cache.Cache
	upstream    Fetcher
	positiveTTL time.Duration
	negativeTTL time.Duration
}

// New constructs the project data cache.
func New(backend cache.Cache, upstream Fetcher, positiveTTL, negativeTTL time.Duration) *Cache {
	if positiveTTL <= 0 {
		positiveTTL = 5 * time.Minute
	}
	if negativeTTL <= 0 {
		negativeTTL = 60 * time.Second
	}
	return &Cache{backend: backend, upstream: upstream, positiveTTL: positiveTTL, negativeTTL: negativeTTL}
}

// Fetch returns the project record for id, or a structured error: an
// Authorization-kind error if the id is unknown, or an Availability/Internal
// error if the upstream store could not be reached ("unavailable",
// distinct from not_found).
func (c *Cache) Fetch(ctx context.Context, id string) (*store.Project, *apperror.Error) {
	key := cache.BuildProjectCacheKey(id)

	if raw, err := c.backend.Get(ctx, key); err == nil {
		metrics.Get().RecordCache(tier, true)
		if string(raw) == negativeSentinel {
			return nil, apperror.ErrUnknownProject.WithDetails("projectId", id)
		}
		var p store.Project
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			return &p, nil
		}
		logger.Log.Warn("project cache entry corrupt, refetching", "project_id", id, "error", err)
	} else if !errors.Is(err, cache.ErrKeyNotFound) {
		logger.Log.Warn("project cache read failed, falling through to upstream", "project_id", id, "error", err)
	}

	metrics.Get().RecordCache(tier, false)

	p, err := c.upstream.GetProject(ctx, id)
	switch {
	case err == nil:
		c.storePositive(ctx, key, p)
		return p, nil
	case errors.Is(err, store.ErrNotFound):
		c.storeNegative(ctx, key)
		return nil, apperror.ErrUnknownProject.WithDetails("projectId", id)
	default:
		return nil, apperror.Wrap(err, apperror.CodeStoreUnavailable, apperror.KindInternal,
			"project store unavailable").WithDetails("projectId", id).WithSeverity(apperror.SeverityWarning)
	}
}

func (c *Cache) storePositive(ctx context.Context, key string, p *store.Project) {
	raw, err := json.Marshal(p)
	if err != nil {
		logger.Log.Warn("failed to encode project cache entry", "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, raw, c.positiveTTL); err != nil {
		logger.Log.Warn("project cache write failed", "error", err)
	}
}

func (c *Cache) storeNegative(ctx context.Context, key string) {
	if err := c.backend.Set(ctx, key, []byte(negativeSentinel), c.negativeTTL); err != nil {
		logger.Log.Warn("project negative-cache write failed", "error", err)
	}
}
