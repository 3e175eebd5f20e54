package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"gateway/pkg/audit"
	"gateway/pkg/cache"
	"gateway/pkg/config"
	"gateway/pkg/database"
	"gateway/pkg/logger"
	"gateway/pkg/metrics"
	"gateway/pkg/passhash"
	"gateway/pkg/ratelimit"
	"gateway/pkg/server"
	"gateway/pkg/telemetry"
	"gateway/services/gateway-svc/internal/adminapi"
	"gateway/services/gateway-svc/internal/dispatcher"
	"gateway/services/gateway-svc/internal/healthfeedback"
	"gateway/services/gateway-svc/internal/httpapi"
	"gateway/services/gateway-svc/internal/identitycache"
	"gateway/services/gateway-svc/internal/migrations"
	"gateway/services/gateway-svc/internal/projectcache"
	"gateway/services/gateway-svc/internal/provider"
	"gateway/services/gateway-svc/internal/registry"
	"gateway/services/gateway-svc/internal/responsecache"
	"gateway/services/gateway-svc/internal/selector"
	"gateway/services/gateway-svc/internal/store"
	"gateway/services/gateway-svc/internal/weightstore"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("Failed to load config", "error", err)
	}

	// Инициализируем логгер
	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	logger.Log.Info("Starting gateway-svc",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	metrics.Get().SetServiceInfo(cfg.App.Version, cfg.App.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryProvider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("telemetry shutdown error", "error", err)
		}
	}()

	// Control-plane Postgres store: the project registry, provider
	// overlay and dispatch audit trail all live here.
	var controlStore *store.Store
	var overlaySeeds []config.ProviderSeed
	pgDB, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to control-plane database", "error", err)
	}
	defer pgDB.Close()

	if err := database.RunMigrations(ctx, pgDB.Pool(), &cfg.Database, migrations.FS, "."); err != nil {
		logger.Fatal("Failed to run control-plane migrations", "error", err)
	}
	controlStore = store.New(pgDB)
	overlaySeeds = cfg.Providers.Seed

	// Process/admin audit trail (separate from the per-request dispatch
	// audit the dispatcher writes through the control-plane store).
	var auditLogger audit.Logger
	auditCfg := &audit.Config{
		Enabled:     cfg.Audit.Enabled,
		Backend:     cfg.Audit.Backend,
		BufferSize:  cfg.Audit.BufferSize,
		FlushPeriod: cfg.Audit.FlushPeriod,
	}
	if cfg.Audit.Enabled && cfg.Audit.Backend == "postgres" {
		auditLogger = audit.NewPostgresLogger(auditCfg, pgDB)
	} else {
		auditLogger, err = audit.New(auditCfg)
		if err != nil {
			logger.Fatal("Failed to initialize audit logger", "error", err)
		}
	}
	audit.SetGlobal(auditLogger)
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logger.Log.Warn("audit logger close error", "error", err)
		}
	}()

	// Shared cache backend: project metadata, response cache and identity
	// resolution all read through the same tiered cache.
	cacheBackend, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		logger.Fatal("Failed to initialize cache backend", "error", err)
	}
	defer func() {
		if err := cacheBackend.Close(); err != nil {
			logger.Log.Warn("cache backend close error", "error", err)
		}
	}()

	limiter, err := ratelimit.New(ratelimit.FromConfig(&cfg.RateLimit))
	if err != nil {
		logger.Fatal("Failed to initialize rate limiter", "error", err)
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			logger.Log.Warn("rate limiter close error", "error", err)
		}
	}()

	reg := registry.New(cfg.Providers.Seed)
	weights := weightstore.New()
	sel := selector.New(reg, weights, cfg.Selector.Deterministic)

	providerClient := provider.NewClient(cfg.Providers.MaxConnsPerHost)

	recorder := healthfeedback.NewRecorder()
	feedbackLoop := healthfeedback.NewLoop(reg, weights, recorder, cfg.HealthFeedback)
	go feedbackLoop.Run(ctx)

	projCache := projectcache.New(cacheBackend, controlStore, cfg.Cache.DefaultTTL, cfg.Cache.NegativeTTL)
	respCache := responsecache.New(cacheBackend, cfg.ResponseCache)
	identityCache := identitycache.New(cacheBackend, stubIdentityResolver, 24*time.Hour, 5*time.Minute)

	gatewayDispatcher := dispatcher.New(dispatcher.FromAppConfig(cfg), dispatcher.Deps{
		Selector:            sel,
		ProjectCache:        projCache,
		ResponseCache:       respCache,
		Limiter:             limiter,
		Client:              providerClient,
		Recorder:            recorder,
		AuditSink:           controlStore,
		RateLimitAllowList:  cfg.RateLimit.IPAllowList,
		RateLimitSkipChains: cfg.RateLimit.SkipQuotaChains,
	})

	clientServer := httpapi.NewServer(gatewayDispatcher, identityCache, cfg.HTTP.RequestTimeout)
	clientMux := clientServer.Routes()
	clientMux.HandleFunc("/health", handleHealth)
	clientMux.HandleFunc("/ready", handleReady(pgDB))
	if cfg.Metrics.Enabled {
		clientMux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	jwtManager := passhash.NewJWTManager(&passhash.JWTConfig{
		SecretKey:          cfg.Admin.JWTSecret,
		AccessTokenExpiry:  cfg.Admin.TokenTTL,
		RefreshTokenExpiry: cfg.Admin.TokenTTL,
		Issuer:             cfg.Admin.Issuer,
	})
	adminServer := adminapi.New(jwtManager, reg, weights, limiter, overlaySeeds, controlStore, cfg.Admin.PasswordHash)

	// Internal gRPC health surface for orchestrator probes, behind the
	// shared interceptor chain.
	healthServer := server.NewWithOptions(cfg, &server.ServerOptions{
		AuditLogger: auditLogger,
	})
	go func() {
		if err := healthServer.Start(ctx); err != nil {
			logger.Fatal("internal gRPC server failed", "error", err)
		}
	}()

	var clientHandler http.Handler = clientMux
	if cfg.HTTP.CORS.Enabled {
		clientHandler = httpapi.CORS(cfg.HTTP.CORS)(clientHandler)
	}

	clientHTTP := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      h2c.NewHandler(clientHandler, &http2.Server{}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	adminHTTP := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:      adminServer.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Log.Info("client-facing proxy listening", "port", cfg.HTTP.Port)
		if err := clientHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("client HTTP server failed", "error", err)
		}
	}()

	go func() {
		logger.Log.Info("admin/control-plane API listening", "port", cfg.Admin.Port)
		if err := adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin HTTP server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := clientHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("client HTTP server shutdown error", "error", err)
	}
	if err := adminHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("admin HTTP server shutdown error", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Log.Info("Server stopped")
}

// stubIdentityResolver backs the identity cache's read-through lookup.
// Actual name/avatar resolution against an indexer or ENS-like registry
// is handled elsewhere; the cache and its negative-TTL behavior are still
// fully exercised by it returning "no identity" uniformly.
func stubIdentityResolver(ctx context.Context, chainID, address string) (*identitycache.Identity, error) {
	return nil, nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		return
	}
}

func handleReady(db *database.PostgresDB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte(`{"ready":false}`)); err != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"ready":true}`)); err != nil {
			return
		}
	}
}
