package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is the in-process backend: a TTL-aware LRU built on a
// doubly-linked recency list, so eviction is O(1) instead of a scan over
// access timestamps. It backs all three gateway cache tiers in
// single-node deploys and in tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	defaultTTL time.Duration
	maxEntries int
	maxBytes   int64
	usedBytes  int64

	hits   int64
	misses int64

	closed bool
	done   chan struct{}
}

// memEntry is one LRU node's payload.
type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (e *memEntry) size() int64 {
	return int64(len(e.key) + len(e.value))
}

// NewMemoryCache builds the in-memory backend. A nil opts uses
// DefaultOptions. The janitor goroutine sweeps expired entries every
// CleanupInterval until Close.
func NewMemoryCache(opts *Options) *MemoryCache {
	if opts == nil {
		opts = DefaultOptions()
	}

	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultOptions().MaxEntries
	}
	maxBytes := opts.MaxMemoryBytes
	if maxBytes <= 0 {
		maxBytes = DefaultOptions().MaxMemoryBytes
	}
	sweep := opts.CleanupInterval
	if sweep <= 0 {
		sweep = DefaultOptions().CleanupInterval
	}

	c := &MemoryCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		defaultTTL: opts.DefaultTTL,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		done:       make(chan struct{}),
	}

	go c.janitor(sweep)

	return c
}

// lookup finds a live entry and promotes it in the recency list. Expired
// entries are removed on sight. Caller holds c.mu.
func (c *MemoryCache) lookup(key string) (*memEntry, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memEntry)
	if e.expired(time.Now()) {
		c.remove(el)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return e, true
}

// remove unlinks one element from both the map and the list. Caller
// holds c.mu.
func (c *MemoryCache) remove(el *list.Element) {
	e := el.Value.(*memEntry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
	c.usedBytes -= e.size()
}

// evictForRoom drops least-recently-used entries until the configured
// entry and byte budgets hold. Caller holds c.mu.
func (c *MemoryCache) evictForRoom() {
	for c.lru.Len() > c.maxEntries || c.usedBytes > c.maxBytes {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		c.remove(oldest)
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	e, ok := c.lookup(key)
	if !ok {
		c.misses++
		return nil, ErrKeyNotFound
	}
	c.hits++
	return e.value, nil
}

func (c *MemoryCache) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, 0, ErrCacheClosed
	}

	e, ok := c.lookup(key)
	if !ok {
		c.misses++
		return nil, 0, ErrKeyNotFound
	}
	c.hits++

	if e.expiresAt.IsZero() {
		return e.value, -1, nil
	}
	remaining := time.Until(e.expiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return e.value, remaining, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	c.setLocked(key, value, ttl)
	c.evictForRoom()
	return nil
}

// setLocked inserts or replaces one entry. Caller holds c.mu.
func (c *MemoryCache) setLocked(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*memEntry)
		c.usedBytes += int64(len(value)) - int64(len(e.value))
		e.value = value
		e.expiresAt = expires
		c.lru.MoveToFront(el)
		return
	}

	e := &memEntry{key: key, value: value, expiresAt: expires}
	c.entries[key] = c.lru.PushFront(e)
	c.usedBytes += e.size()
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrCacheClosed
	}

	el, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if el.Value.(*memEntry).expired(time.Now()) {
		c.remove(el)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) MGet(_ context.Context, keys []string) (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if e, ok := c.lookup(key); ok {
			c.hits++
			out[key] = e.value
		} else {
			c.misses++
		}
	}
	return out, nil
}

func (c *MemoryCache) MSet(_ context.Context, entries map[string][]byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	for key, value := range entries {
		c.setLocked(key, value, ttl)
	}
	c.evictForRoom()
	return nil
}

func (c *MemoryCache) MDelete(_ context.Context, keys []string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrCacheClosed
	}

	var deleted int64
	for _, key := range keys {
		if el, ok := c.entries[key]; ok {
			c.remove(el)
			deleted++
		}
	}
	return deleted, nil
}

func (c *MemoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	now := time.Now()
	var out []string
	for key, el := range c.entries {
		if el.Value.(*memEntry).expired(now) {
			continue
		}
		if matchPattern(pattern, key) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (c *MemoryCache) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrCacheClosed
	}

	var deleted int64
	for key, el := range c.entries {
		if matchPattern(pattern, key) {
			c.remove(el)
			deleted++
		}
	}
	return deleted, nil
}

func (c *MemoryCache) Stats(_ context.Context) (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	byPrefix := make(map[string]int64)
	for key := range c.entries {
		byPrefix[extractPrefix(key)]++
	}

	stats := &Stats{
		TotalKeys:    int64(len(c.entries)),
		Hits:         c.hits,
		Misses:       c.misses,
		MemoryBytes:  c.usedBytes,
		KeysByPrefix: byPrefix,
		Backend:      BackendMemory,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats, nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.usedBytes = 0
	return nil
}

// Close stops the janitor and fails all subsequent operations. Safe to
// call more than once.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	c.entries = nil
	c.lru.Init()
	c.usedBytes = 0
	return nil
}

func (c *MemoryCache) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *MemoryCache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	now := time.Now()
	for _, el := range c.entries {
		if el.Value.(*memEntry).expired(now) {
			c.remove(el)
		}
	}
}

// matchPattern matches key against a pattern containing at most one "*"
// wildcard ("*" alone, "tier:*", "*:suffix", "rpc:*:hash"). Anything
// else is an exact comparison.
func matchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}

	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == key
	}

	prefix, suffix := pattern[:star], pattern[star+1:]
	if len(key) < len(prefix)+len(suffix) {
		return false
	}
	return strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix)
}

// extractPrefix returns the tier segment of a "<tier>:<rest>" key, or
// "other" for keys outside the tier scheme.
func extractPrefix(key string) string {
	if tier, _, ok := strings.Cut(key, ":"); ok {
		return tier
	}
	return "other"
}
