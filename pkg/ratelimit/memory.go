// pkg/ratelimit/memory.go

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process token-bucket limiter. Refill follows
// the refill rule: tokens += refill_rate * floor((now-last)/refill_interval),
// capped at max_tokens. A map of recently-denied keys short-circuits
// repeat checks until the bucket's next refill boundary, avoiding a lock
// acquisition per retry under sustained pressure from one caller.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	denied  map[string]time.Time
	config  *Config
	stopCh  chan struct{}
	closed  bool
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewMemoryLimiter(cfg *Config) *MemoryLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = 10
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		denied:  make(map[string]time.Time),
		config:  cfg,
		stopCh:  make(chan struct{}),
	}

	go l.cleanup()

	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements check_and_consume(key, n). It never returns an error:
// an in-process limiter has no backing store to fail, so unlike RedisLimiter
// it cannot fail-open — there is nothing to fail.
func (l *MemoryLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	if l.closed {
		return false, ErrLimiterClosed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.denied[key]; ok {
		if time.Now().Before(until) {
			return false, nil
		}
		delete(l.denied, key)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.config.MaxTokens), last: time.Now()}
		l.buckets[key] = b
	}

	now := time.Now()
	steps := now.Sub(b.last) / l.config.RefillInterval
	if steps > 0 {
		b.tokens += float64(steps) * float64(l.config.RefillRate)
		if b.tokens > float64(l.config.MaxTokens) {
			b.tokens = float64(l.config.MaxTokens)
		}
		b.last = b.last.Add(steps * l.config.RefillInterval)
	}

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true, nil
	}

	l.denied[key] = l.nextRefill(b)
	return false, nil
}

func (l *MemoryLimiter) nextRefill(b *bucket) time.Time {
	return b.last.Add(l.config.RefillInterval)
}

func (l *MemoryLimiter) Wait(ctx context.Context, key string) error {
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

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	delete(l.denied, key)
	return nil
}

func (l *MemoryLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return &LimitInfo{
			Limit:     l.config.MaxTokens,
			Remaining: l.config.MaxTokens,
			ResetAt:   time.Now().Add(l.config.RefillInterval),
		}, nil
	}

	remaining := int(b.tokens)
	if remaining < 0 {
		remaining = 0
	}

	info := &LimitInfo{
		Limit:     l.config.MaxTokens,
		Remaining: remaining,
		ResetAt:   l.nextRefill(b),
	}
	if remaining == 0 {
		info.RetryAfter = time.Until(info.ResetAt)
	}
	return info, nil
}

func (l *MemoryLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	close(l.stopCh)
	l.buckets = nil
	l.denied = nil

	return nil
}

func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.doCleanup()
		}
	}
}

func (l *MemoryLimiter) doCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	staleAfter := l.config.RefillInterval * 4

	for key, b := range l.buckets {
		if b.tokens >= float64(l.config.MaxTokens) && now.Sub(b.last) > staleAfter {
			delete(l.buckets, key)
		}
	}
	for key, until := range l.denied {
		if now.After(until) {
			delete(l.denied, key)
		}
	}
}
