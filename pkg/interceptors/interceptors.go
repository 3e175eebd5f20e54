// Package interceptors assembles the internal gRPC surface's middleware
// chain. Order is fixed: recovery outermost (a panic anywhere below
// still becomes a status error), then rate limiting (reject before
// spending work), tracing, metrics, logging, validation, and audit
// innermost so it records the final outcome.
package interceptors

import (
	"google.golang.org/grpc"

	"gateway/pkg/audit"
	"gateway/pkg/ratelimit"
	"gateway/pkg/telemetry"
)

// ServerConfig selects which optional links join the chain.
type ServerConfig struct {
	ServiceName   string
	EnableTracing bool
	EnableAudit   bool
	RateLimiter   ratelimit.Limiter
	AuditLogger   audit.Logger
	AuditExclude  map[string]bool
	KeyExtractor  ratelimit.KeyExtractor
}

func (cfg *ServerConfig) auditEnabled() bool {
	return cfg.EnableAudit && cfg.AuditLogger != nil
}

func (cfg *ServerConfig) auditConfig() *AuditConfig {
	return &AuditConfig{
		ServiceName:    cfg.ServiceName,
		ExcludeMethods: cfg.AuditExclude,
		Logger:         cfg.AuditLogger,
	}
}

// UnaryServerInterceptors builds the unary chain for cfg.
func UnaryServerInterceptors(cfg *ServerConfig) grpc.UnaryServerInterceptor {
	chain := []grpc.UnaryServerInterceptor{RecoveryInterceptor()}

	if cfg.RateLimiter != nil {
		chain = append(chain, RateLimitInterceptor(cfg.RateLimiter, cfg.KeyExtractor))
	}
	if cfg.EnableTracing {
		chain = append(chain, telemetry.UnaryServerInterceptor())
	}
	chain = append(chain,
		MetricsInterceptor(cfg.ServiceName),
		LoggingInterceptor(),
		ValidationInterceptor(),
	)
	if cfg.auditEnabled() {
		chain = append(chain, AuditInterceptor(cfg.auditConfig()))
	}

	return chainUnaryInterceptors(chain...)
}

// StreamServerInterceptors builds the stream chain; same order, minus
// validation (stream messages arrive after interception).
func StreamServerInterceptors(cfg *ServerConfig) grpc.StreamServerInterceptor {
	chain := []grpc.StreamServerInterceptor{StreamRecoveryInterceptor()}

	if cfg.RateLimiter != nil {
		chain = append(chain, StreamRateLimitInterceptor(cfg.RateLimiter, cfg.KeyExtractor))
	}
	if cfg.EnableTracing {
		chain = append(chain, telemetry.StreamServerInterceptor())
	}
	chain = append(chain,
		StreamMetricsInterceptor(cfg.ServiceName),
		StreamLoggingInterceptor(),
	)
	if cfg.auditEnabled() {
		chain = append(chain, StreamAuditInterceptor(cfg.auditConfig()))
	}

	return chainStreamInterceptors(chain...)
}
