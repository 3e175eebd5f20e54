// Package cache provides the gateway's shared tiered-cache abstraction:
// one Cache interface with in-memory and Redis backends, plus the key
// builders for the response, project-metadata, and identity tiers.
//
// The memory backend serves single-node deploys and tests; the Redis
// backend is the shared store that keeps the three cache tiers coherent
// across gateway replicas. All keys follow the "<tier>:<rest>" shape
// produced by hasher.go, which is what the prefix-based stats and
// pattern operations below key off.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gateway/pkg/config"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var (
	// ErrKeyNotFound distinguishes a miss from a backend failure; callers
	// treat it as "fall through to the next tier", never as an error to
	// surface.
	ErrKeyNotFound = errors.New("key not found")
	// ErrCacheClosed is returned by every operation after Close.
	ErrCacheClosed = errors.New("cache is closed")
)

// Cache is the contract both backends implement. Values are opaque byte
// slices; each tier owns its own serialization.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetWithTTL(ctx context.Context, key string) (value []byte, ttl time.Duration, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Batch variants. MGet omits missing keys from the result map;
	// MDelete reports how many keys actually existed.
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
	MDelete(ctx context.Context, keys []string) (int64, error)

	// Pattern operations support a single "*" wildcard, enough for
	// per-tier sweeps like "rpc:*". Linear in the key count on both
	// backends; operational tooling only, never the request path.
	Keys(ctx context.Context, pattern string) ([]string, error)
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)

	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

// Stats is a point-in-time snapshot of one backend's state.
type Stats struct {
	TotalKeys    int64
	Hits         int64
	Misses       int64
	HitRate      float64
	MemoryBytes  int64
	KeysByPrefix map[string]int64 // keyed by cache tier ("rpc", "project", "identity")
	Backend      string
}

// Options selects and tunes a backend.
type Options struct {
	Backend    string
	DefaultTTL time.Duration // applied when Set is called with ttl <= 0

	// Memory backend
	MaxEntries      int
	MaxMemoryBytes  int64
	CleanupInterval time.Duration

	// Redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	Namespace     string // optional key prefix isolating this gateway's keys in a shared Redis
}

func DefaultOptions() *Options {
	return &Options{
		Backend:         BackendMemory,
		DefaultTTL:      5 * time.Minute,
		MaxEntries:      100000,
		MaxMemoryBytes:  256 * 1024 * 1024,
		CleanupInterval: 1 * time.Minute,
		RedisAddr:       "localhost:6379",
		RedisPoolSize:   10,
	}
}

// FromConfig maps the application's cache section onto backend options.
func FromConfig(cfg *config.CacheConfig) *Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	opts.Backend = cfg.Driver
	opts.DefaultTTL = cfg.DefaultTTL
	opts.MaxEntries = cfg.MaxEntries
	opts.RedisAddr = cfg.Address()
	opts.RedisPassword = cfg.Password
	opts.RedisDB = cfg.DB
	opts.Namespace = cfg.Namespace
	return opts
}

// New builds the backend opts selects. An unrecognized backend name is an
// error rather than a silent memory fallback, so a typo in config does
// not quietly leave replicas uncoordinated.
func New(opts *Options) (Cache, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	switch opts.Backend {
	case BackendRedis:
		return NewRedisCache(opts)
	case BackendMemory, "":
		return NewMemoryCache(opts), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// MustNew is New for wiring paths where a bad cache config should stop
// the process.
func MustNew(opts *Options) Cache {
	c, err := New(opts)
	if err != nil {
		panic(err)
	}
	return c
}
