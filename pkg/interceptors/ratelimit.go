package interceptors

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"gateway/pkg/logger"
	"gateway/pkg/ratelimit"
)

// incomingMetadata flattens the grpc metadata into the map shape the
// limiter's key extractors take.
func incomingMetadata(ctx context.Context) map[string]string {
	md, _ := metadata.FromIncomingContext(ctx)
	out := make(map[string]string, len(md))
	for k, v := range md {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// checkLimit runs one admission check. A limiter backend error fails
// open: the internal surface must stay reachable for operators even
// when the shared store is down.
func checkLimit(ctx context.Context, limiter ratelimit.Limiter, extractor ratelimit.KeyExtractor, fullMethod string) (string, bool) {
	key := extractor(ctx, fullMethod, incomingMetadata(ctx))

	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		logger.Log.Warn("Rate limit check failed", "error", err, "key", key)
		return key, true
	}
	return key, allowed
}

// RateLimitInterceptor throttles unary RPCs on the internal surface,
// attaching x-ratelimit-* headers on denial.
func RateLimitInterceptor(limiter ratelimit.Limiter, keyExtractor ratelimit.KeyExtractor) grpc.UnaryServerInterceptor {
	if keyExtractor == nil {
		keyExtractor = ratelimit.DefaultKeyExtractor
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key, allowed := checkLimit(ctx, limiter, keyExtractor, info.FullMethod)
		if allowed {
			return handler(ctx, req)
		}

		limitInfo, err := limiter.GetInfo(ctx, key)
		if err != nil {
			logger.Log.Warn("Failed to get rate limit info", "error", err, "key", key)
			limitInfo = &ratelimit.LimitInfo{ResetAt: time.Now().Add(time.Minute)}
		}
		logger.Log.Warn("Rate limit exceeded", "key", key, "limit", limitInfo.Limit)

		header := metadata.Pairs(
			"x-ratelimit-limit", strconv.Itoa(limitInfo.Limit),
			"x-ratelimit-remaining", "0",
			"x-ratelimit-reset", limitInfo.ResetAt.Format(time.RFC3339),
		)
		if err := grpc.SetHeader(ctx, header); err != nil {
			logger.Log.Debug("Failed to set rate limit headers", "error", err)
		}

		return nil, status.Errorf(codes.ResourceExhausted,
			"rate limit exceeded: %d requests per %v", limitInfo.Limit, time.Until(limitInfo.ResetAt))
	}
}

// StreamRateLimitInterceptor throttles stream establishment; the stream
// itself is not re-checked once admitted.
func StreamRateLimitInterceptor(limiter ratelimit.Limiter, keyExtractor ratelimit.KeyExtractor) grpc.StreamServerInterceptor {
	if keyExtractor == nil {
		keyExtractor = ratelimit.DefaultKeyExtractor
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if _, allowed := checkLimit(ss.Context(), limiter, keyExtractor, info.FullMethod); !allowed {
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(srv, ss)
	}
}
