// Package server owns the internal-only gRPC surface of the gateway
// process: the grpc.health.v1 service orchestrators probe for liveness
// and readiness, behind the shared interceptor chain (recovery, rate
// limit, tracing, metrics, logging, audit). Client-facing proxy traffic
// never flows here; that is plain HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"gateway/pkg/audit"
	"gateway/pkg/config"
	"gateway/pkg/interceptors"
	"gateway/pkg/logger"
	"gateway/pkg/ratelimit"
)

// GRPCServer is the internal health/admin gRPC listener.
type GRPCServer struct {
	server      *grpc.Server
	health      *health.Server
	serviceName string
	config      *config.Config
	auditLogger audit.Logger
}

// ServerOptions lets the caller share already-constructed collaborators
// instead of the server building its own.
type ServerOptions struct {
	RateLimiter         ratelimit.Limiter
	AuditLogger         audit.Logger
	AuditExcludeMethods []string
	KeyExtractor        ratelimit.KeyExtractor
}

// New builds a server with no shared collaborators.
func New(cfg *config.Config) *GRPCServer {
	return NewWithOptions(cfg, nil)
}

// NewWithOptions builds the grpc.Server, its interceptor chain, and the
// health service, without touching the listener yet.
func NewWithOptions(cfg *config.Config, opts *ServerOptions) *GRPCServer {
	if opts == nil {
		opts = &ServerOptions{}
	}

	s := grpc.NewServer(serverOptions(cfg, opts)...)

	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)

	if cfg.IsDevelopment() {
		reflection.Register(s)
		logger.Log.Debug("gRPC reflection enabled")
	}

	return &GRPCServer{
		server:      s,
		health:      h,
		serviceName: cfg.App.Name,
		config:      cfg,
		auditLogger: opts.AuditLogger,
	}
}

// serverOptions assembles transport limits, keepalive policy, and the
// interceptor chain.
func serverOptions(cfg *config.Config, opts *ServerOptions) []grpc.ServerOption {
	interceptorCfg := &interceptors.ServerConfig{
		ServiceName:   cfg.App.Name,
		EnableTracing: cfg.Tracing.Enabled,
		EnableAudit:   cfg.Audit.Enabled && opts.AuditLogger != nil,
		RateLimiter:   opts.RateLimiter,
		AuditLogger:   opts.AuditLogger,
		AuditExclude:  auditExclusions(cfg, opts),
		KeyExtractor:  opts.KeyExtractor,
	}

	if cfg.GRPC.TLS.Enabled {
		logger.Log.Warn("TLS is enabled but not implemented yet")
	}

	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(cfg.GRPC.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.GRPC.MaxSendMsgSize),
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentConn)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     cfg.GRPC.KeepAlive.MaxConnectionIdle,
			MaxConnectionAge:      cfg.GRPC.KeepAlive.MaxConnectionAge,
			MaxConnectionAgeGrace: cfg.GRPC.KeepAlive.MaxConnectionAgeGrace,
			Time:                  cfg.GRPC.KeepAlive.Time,
			Timeout:               cfg.GRPC.KeepAlive.Timeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.UnaryInterceptor(interceptors.UnaryServerInterceptors(interceptorCfg)),
		grpc.StreamInterceptor(interceptors.StreamServerInterceptors(interceptorCfg)),
	}
}

// auditExclusions merges configured and caller-supplied exclusions with
// the health probes, which fire every few seconds and would be pure
// audit noise.
func auditExclusions(cfg *config.Config, opts *ServerOptions) map[string]bool {
	exclude := map[string]bool{
		"/grpc.health.v1.Health/Check": true,
		"/grpc.health.v1.Health/Watch": true,
	}
	for _, method := range opts.AuditExcludeMethods {
		exclude[method] = true
	}
	for _, method := range cfg.Audit.ExcludeMethods {
		exclude[method] = true
	}
	return exclude
}

// Start listens on the configured gRPC port and serves until Shutdown or
// Stop is called. It blocks; callers run it in its own goroutine and own
// the process lifecycle (signals, telemetry, metrics) themselves.
func (s *GRPCServer) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.config.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.health.SetServingStatus(s.serviceName, grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Log.Info("internal gRPC health server listening",
		"service", s.serviceName,
		"port", s.config.GRPC.Port,
	)
	s.auditLifecycle(ctx, "server.Start", audit.ActionCreate)

	return s.server.Serve(lis)
}

// Shutdown flips the health status to NOT_SERVING and drains in-flight
// RPCs, forcing a hard stop when ctx expires first.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.SetServingStatus(s.serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("internal gRPC server stopped gracefully")
	case <-ctx.Done():
		logger.Log.Warn("forcing internal gRPC server stop")
		s.server.Stop()
	}
}

// auditLifecycle records one server lifecycle transition, when an audit
// logger is attached.
func (s *GRPCServer) auditLifecycle(ctx context.Context, method string, action audit.Action) {
	if s.auditLogger == nil {
		return
	}
	entry := audit.NewEntry().
		Service(s.serviceName).
		Method(method).
		Action(action).
		Outcome(audit.OutcomeSuccess).
		Meta("port", s.config.GRPC.Port).
		Meta("version", s.config.App.Version).
		Build()
	if err := s.auditLogger.Log(ctx, entry); err != nil {
		logger.Log.Warn("Failed to log audit entry", "error", err)
	}
}

// GetEngine exposes the raw grpc.Server for additional service
// registration.
func (s *GRPCServer) GetEngine() *grpc.Server {
	return s.server
}

// SetServingStatus overrides the advertised health status.
func (s *GRPCServer) SetServingStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus(s.serviceName, status)
}

// Stop halts the server immediately, abandoning in-flight RPCs.
func (s *GRPCServer) Stop() {
	s.server.Stop()
}

// GracefulStop drains and stops with no deadline.
func (s *GRPCServer) GracefulStop() {
	s.server.GracefulStop()
}
