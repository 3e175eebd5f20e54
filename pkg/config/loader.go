// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "GATEWAY_"
	configEnvVar = "CONFIG_PATH"
)

// Loader loads configuration from layered sources: defaults, a YAML file,
// then environment variables (highest priority).
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/gateway/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption customizes Loader construction.
type LoaderOption func(*Loader)

func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load reads defaults, then an optional YAML file, then environment
// variables, unmarshals into Config, and validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		"app.name":        "gateway",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		"grpc.port":                               50051,
		"grpc.max_recv_msg_size":                  16 * 1024 * 1024,
		"grpc.max_send_msg_size":                  16 * 1024 * 1024,
		"grpc.max_concurrent_conn":                1000,
		"grpc.keepalive.max_connection_idle":      15 * time.Minute,
		"grpc.keepalive.max_connection_age":       30 * time.Minute,
		"grpc.keepalive.max_connection_age_grace": 5 * time.Minute,
		"grpc.keepalive.time":                     5 * time.Minute,
		"grpc.keepalive.timeout":                  20 * time.Second,
		"grpc.tls.enabled":                        false,

		"http.port":                   8080,
		"http.read_timeout":           30 * time.Second,
		"http.write_timeout":          30 * time.Second,
		"http.request_timeout":        10 * time.Second,
		"http.shutdown_timeout":       10 * time.Second,
		"http.cors.enabled":           true,
		"http.cors.allowed_origins":   []string{"*"},
		"http.cors.allowed_methods":   []string{"GET", "POST", "OPTIONS"},
		"http.cors.allowed_headers":   []string{"*"},
		"http.cors.allow_credentials": false,
		"http.cors.max_age":           86400,

		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "gateway",
		"metrics.subsystem": "",

		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "gateway",
		"tracing.sample_rate":  0.1,

		"database.driver":             "postgres",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "gateway",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.migrations_path":    "migrations",
		"database.auto_migrate":       true,

		"cache.enabled":      true,
		"cache.driver":       "memory",
		"cache.host":         "localhost",
		"cache.port":         6379,
		"cache.db":           0,
		"cache.default_ttl":  5 * time.Minute,
		"cache.negative_ttl": 60 * time.Second,
		"cache.max_entries":  100000,
		"cache.namespace":    "gw",

		"rate_limit.enabled":          true,
		"rate_limit.max_tokens":       100,
		"rate_limit.refill_rate":      10,
		"rate_limit.refill_interval":  time.Second,
		"rate_limit.backend":          "memory",
		"rate_limit.redis_addr":       "localhost:6379",
		"rate_limit.redis_password":   "",
		"rate_limit.redis_db":         1,
		"rate_limit.cleanup_interval": 5 * time.Minute,
		"rate_limit.ip_allow_list":    []string{},
		"rate_limit.skip_quota_chains": []string{},

		"audit.enabled":      true,
		"audit.backend":      "stdout",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		"selector.deterministic": false,
		"selector.max_retries":   2,

		"response_cache.enabled": true,
		"response_cache.methods": map[string]any{
			"eth_chainId":           5 * time.Minute,
			"net_version":           5 * time.Minute,
			"eth_getBlockByHash":        30 * time.Minute,
			"eth_getTransactionByHash":  30 * time.Second,
			"eth_getTransactionReceipt": 30 * time.Second,
			"eth_getCode":               10 * time.Minute,
			"solana_getGenesisHash": 10 * time.Minute,
		},

		"health_feedback.interval":    60 * time.Second,
		"health_feedback.window":      5 * time.Minute,
		"health_feedback.stale_after": 15 * time.Minute,

		"admin.port":          8081,
		"admin.jwt_secret":    "",
		"admin.issuer":        "gateway-admin",
		"admin.token_ttl":     24 * time.Hour,
		"admin.password_hash": "",

		"admission.validate_project_id":     true,
		"admission.ofac_blocked_countries":  []string{"KP", "IR", "SY", "CU"},

		"providers.max_conns_per_host": 64,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads configuration or panics.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load is a convenience function using default options.
func Load() (*Config, error) {
	return NewLoader().Load()
}
