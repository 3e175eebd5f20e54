package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gateway/pkg/logger"
)

// RedisLimiter is a shared, Redis-backed token-bucket limiter so that quota
// is enforced consistently across gateway replicas. State per key is a hash
// of {tokens, last_refill_unix_ms}, refilled and consumed atomically by a
// Lua script. On a Redis outage it fails open, falling back to a local
// in-process bucket so a backing-store blip does not turn into a hard
// outage for callers.
type RedisLimiter struct {
	client   *redis.Client
	config   *Config
	script   *redis.Script
	fallback *MemoryLimiter
}

func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	// Atomic token-bucket check_and_consume: refill by elapsed full
	// intervals, cap at max_tokens, consume n if available.
	script := redis.NewScript(`
		local key = KEYS[1]
		local max_tokens = tonumber(ARGV[1])
		local refill_rate = tonumber(ARGV[2])
		local refill_interval_ms = tonumber(ARGV[3])
		local now_ms = tonumber(ARGV[4])
		local n = tonumber(ARGV[5])

		local state = redis.call('HMGET', key, 'tokens', 'last')
		local tokens = tonumber(state[1])
		local last = tonumber(state[2])
		if tokens == nil then
			tokens = max_tokens
			last = now_ms
		end

		local steps = math.floor((now_ms - last) / refill_interval_ms)
		if steps > 0 then
			tokens = math.min(max_tokens, tokens + steps * refill_rate)
			last = last + steps * refill_interval_ms
		end

		local allowed = 0
		if tokens >= n then
			tokens = tokens - n
			allowed = 1
		end

		redis.call('HMSET', key, 'tokens', tokens, 'last', last)
		redis.call('PEXPIRE', key, refill_interval_ms * max_tokens + refill_interval_ms)

		return {allowed, tokens, last}
	`)

	return &RedisLimiter{
		client:   client,
		config:   cfg,
		script:   script,
		fallback: NewMemoryLimiter(cfg),
	}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *RedisLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	redisKey := "ratelimit:{" + key + "}"
	now := time.Now().UnixMilli()

	result, err := l.script.Run(ctx, l.client, []string{redisKey},
		l.config.MaxTokens, l.config.RefillRate, l.config.RefillInterval.Milliseconds(), now, n).Slice()
	if err != nil {
		logger.Log.Warn("rate limiter backing store unavailable, failing open",
			"key", key, "error", err)
		return l.fallback.AllowN(ctx, key, n)
	}

	if len(result) == 0 {
		return true, nil
	}

	allowed, _ := result[0].(int64)
	return allowed == 1, nil
}

func (l *RedisLimiter) Wait(ctx context.Context, key string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			allowed, err := l.Allow(ctx, key)
			if err != nil {
				return err
			}
			if allowed {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.config.RefillInterval):
			}
		}
	}
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	redisKey := "ratelimit:{" + key + "}"
	return l.client.Del(ctx, redisKey).Err()
}

func (l *RedisLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	redisKey := "ratelimit:{" + key + "}"

	state, err := l.client.HMGet(ctx, redisKey, "tokens", "last").Result()
	if err != nil {
		return l.fallback.GetInfo(ctx, key)
	}

	tokens := float64(l.config.MaxTokens)
	lastMs := time.Now().UnixMilli()
	if state[0] != nil {
		fmt.Sscanf(state[0].(string), "%f", &tokens)
	}
	if state[1] != nil {
		fmt.Sscanf(state[1].(string), "%d", &lastMs)
	}

	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.UnixMilli(lastMs).Add(l.config.RefillInterval)

	info := &LimitInfo{
		Limit:     l.config.MaxTokens,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if remaining == 0 {
		info.RetryAfter = time.Until(resetAt)
	}
	return info, nil
}

func (l *RedisLimiter) Close() error {
	l.fallback.Close()
	return l.client.Close()
}
