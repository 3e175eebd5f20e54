package ratelimit

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"gateway/pkg/config"
)

// Стандартные ошибки
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Limiter интерфейс ограничителя запросов
type Limiter interface {
	// Allow проверяет, разрешён ли запрос
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN проверяет, разрешены ли n запросов
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Wait блокирует до получения разрешения
	Wait(ctx context.Context, key string) error

	// Reset сбрасывает лимит для ключа
	Reset(ctx context.Context, key string) error

	// GetInfo возвращает информацию о текущем состоянии
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	// Close закрывает лимитер
	Close() error
}

// LimitInfo информация о состоянии лимита
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config is the token-bucket rate limiter's own configuration, independent
// of how it is sourced (see FromConfig for the conversion from the
// application's layered configuration).
type Config struct {
	// MaxTokens caps the bucket; also the burst size.
	MaxTokens int `koanf:"max_tokens"`

	// RefillRate tokens added per RefillInterval.
	RefillRate int `koanf:"refill_rate"`

	// RefillInterval is the refill step duration.
	RefillInterval time.Duration `koanf:"refill_interval"`

	// Backend хранилище (memory, redis)
	Backend string `koanf:"backend"`

	// CleanupInterval интервал очистки для in-memory
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// Redis настройки Redis
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// IPAllowList bypasses the limiter entirely for matching client IPs.
	IPAllowList []string `koanf:"ip_allow_list"`

	// SkipQuotaChains bypasses quota consumption for these chain ids.
	SkipQuotaChains []string `koanf:"skip_quota_chains"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		MaxTokens:       100,
		RefillRate:      10,
		RefillInterval:  time.Second,
		Backend:         "memory",
		CleanupInterval: 5 * time.Minute,
	}
}

// FromConfig converts the application's layered rate-limit configuration
// into the limiter's own Config.
func FromConfig(cfg *config.RateLimitConfig) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return &Config{
		MaxTokens:       cfg.MaxTokens,
		RefillRate:      cfg.RefillRate,
		RefillInterval:  cfg.RefillInterval,
		Backend:         cfg.Backend,
		CleanupInterval: cfg.CleanupInterval,
		RedisAddr:       cfg.RedisAddr,
		RedisPassword:   cfg.RedisPassword,
		RedisDB:         cfg.RedisDB,
		IPAllowList:     cfg.IPAllowList,
		SkipQuotaChains: cfg.SkipQuotaChains,
	}
}

// New создаёт лимитер на основе конфигурации
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "redis":
		return NewRedisLimiter(cfg)
	case "memory", "":
		return NewMemoryLimiter(cfg), nil
	default:
		return NewMemoryLimiter(cfg), nil
	}
}

// KeyExtractor extracts a rate-limit bucket key from request metadata.
// "route" names the surface being hit (e.g. "rpc", "balances"); metadata
// carries request headers (x-forwarded-for, x-project-id, ...).
type KeyExtractor func(ctx context.Context, route string, metadata map[string]string) string

// IPKeyExtractor keys the bucket by client IP.
func IPKeyExtractor(_ context.Context, _ string, metadata map[string]string) string {
	if ip, ok := metadata["x-forwarded-for"]; ok && ip != "" {
		return "ip:" + ip
	}
	if ip, ok := metadata["x-real-ip"]; ok && ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// ProjectKeyExtractor keys by project id, falling back to client IP when no
// project id is present on the request (unauthenticated admission paths).
func ProjectKeyExtractor(ctx context.Context, route string, metadata map[string]string) string {
	if projectID, ok := metadata["x-project-id"]; ok && projectID != "" {
		return "project:" + projectID
	}
	return IPKeyExtractor(ctx, route, metadata)
}

// CompositeKeyExtractor concatenates the output of several extractors into
// one bucket key.
func CompositeKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(ctx context.Context, route string, metadata map[string]string) string {
		var key string
		for _, ext := range extractors {
			key += ext(ctx, route, metadata) + ":"
		}
		return key
	}
}

// DefaultKeyExtractor is used whenever a call site does not select one
// explicitly; project id takes priority over client IP.
var DefaultKeyExtractor KeyExtractor = ProjectKeyExtractor

// Allowed bundles a consume outcome with the reset hint callers need to
// build Retry-After / x-ratelimit-* responses.
type Allowed struct {
	OK        bool
	Remaining int
	ResetHint time.Time
}

// IsAllowListed reports whether ip appears in the limiter's CIDR/exact
// allow-list, bypassing quota consumption entirely.
func IsAllowListed(ip string, allowList []string) bool {
	if ip == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	for _, entry := range allowList {
		if entry == ip {
			return true
		}
		if parsed == nil {
			continue
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(parsed) {
			return true
		}
	}
	return false
}

// IsSkipQuotaChain reports whether chainID is exempt from quota consumption.
func IsSkipQuotaChain(chainID string, skip []string) bool {
	for _, c := range skip {
		if c == chainID {
			return true
		}
	}
	return false
}

// RateLimitedMethods методы с rate limiting
type RateLimitedMethods struct {
	mu            sync.RWMutex
	methods       map[string]*Config
	defaultConfig *Config
}

// NewRateLimitedMethods создаёт конфигурацию методов
func NewRateLimitedMethods(defaultCfg *Config) *RateLimitedMethods {
	if defaultCfg == nil {
		defaultCfg = DefaultConfig()
	}
	return &RateLimitedMethods{
		methods:       make(map[string]*Config),
		defaultConfig: defaultCfg,
	}
}

// Set устанавливает лимит для метода
func (r *RateLimitedMethods) Set(method string, cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = cfg
}

// Get возвращает конфигурацию для метода
func (r *RateLimitedMethods) Get(method string) *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.methods[method]; ok {
		return cfg
	}
	return r.defaultConfig
}
