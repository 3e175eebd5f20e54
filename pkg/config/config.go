// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level gateway configuration.
type Config struct {
	App           AppConfig           `koanf:"app"`
	GRPC          GRPCConfig          `koanf:"grpc"`
	HTTP          HTTPConfig          `koanf:"http"`
	Log           LogConfig           `koanf:"log"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Tracing       TracingConfig       `koanf:"tracing"`
	Database      DatabaseConfig      `koanf:"database"`
	Cache         CacheConfig         `koanf:"cache"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
	Audit         AuditConfig         `koanf:"audit"`
	Selector      SelectorConfig      `koanf:"selector"`
	Providers     ProvidersConfig     `koanf:"providers"`
	ResponseCache ResponseCacheConfig `koanf:"response_cache"`
	HealthFeedback HealthFeedbackConfig `koanf:"health_feedback"`
	Admin         AdminConfig         `koanf:"admin"`
	Admission     AdmissionConfig     `koanf:"admission"`
}

// AppConfig holds process-wide identity settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// GRPCConfig configures the internal-only admin/health grpc surface.
type GRPCConfig struct {
	Port              int             `koanf:"port"`
	MaxRecvMsgSize    int             `koanf:"max_recv_msg_size"`
	MaxSendMsgSize    int             `koanf:"max_send_msg_size"`
	MaxConcurrentConn int             `koanf:"max_concurrent_conn"`
	KeepAlive         KeepAliveConfig `koanf:"keepalive"`
	TLS               TLSConfig       `koanf:"tls"`
}

type KeepAliveConfig struct {
	MaxConnectionIdle     time.Duration `koanf:"max_connection_idle"`
	MaxConnectionAge      time.Duration `koanf:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `koanf:"max_connection_age_grace"`
	Time                  time.Duration `koanf:"time"`
	Timeout               time.Duration `koanf:"timeout"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`
}

// HTTPConfig configures the client-facing proxy/REST surface.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"` // wall-clock budget per request
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig configures the control-plane Postgres store.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql", "":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig configures the shared tiered-cache backend (project data,
// response cache, identity cache all select from this backend).
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	NegativeTTL time.Duration `koanf:"negative_ttl"`
	MaxEntries int           `koanf:"max_entries"`
	Namespace  string        `koanf:"namespace"` // key prefix isolating this gateway's keys in a shared Redis
}

func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures the per-project/per-ip token bucket limiter.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	MaxTokens       int           `koanf:"max_tokens"`
	RefillRate      int           `koanf:"refill_rate"`
	RefillInterval  time.Duration `koanf:"refill_interval"`
	Backend         string        `koanf:"backend"` // redis, memory
	RedisAddr       string        `koanf:"redis_addr"`
	RedisPassword   string        `koanf:"redis_password"`
	RedisDB         int           `koanf:"redis_db"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	IPAllowList     []string      `koanf:"ip_allow_list"`   // CIDR blocks bypassing the limiter
	SkipQuotaChains []string      `koanf:"skip_quota_chains"`
}

type AuditConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Backend        string        `koanf:"backend"` // postgres, stdout
	BufferSize     int           `koanf:"buffer_size"`
	FlushPeriod    time.Duration `koanf:"flush_period"`
	ExcludeMethods []string      `koanf:"exclude_methods"`
}

// SelectorConfig configures the weighted provider selector.
type SelectorConfig struct {
	Deterministic bool `koanf:"deterministic"` // config-only tie-break flag, never a runtime toggle
	MaxRetries    int  `koanf:"max_retries"`
}

// ProvidersConfig seeds the in-memory registry at startup.
type ProvidersConfig struct {
	Seed            []ProviderSeed `koanf:"seed"`
	MaxConnsPerHost int            `koanf:"max_conns_per_host"` // outbound HTTP connection-pool cap per upstream host
}

// ProviderSeed is one configured upstream provider descriptor.
type ProviderSeed struct {
	ID             string   `koanf:"id"`
	ChainFamily    string   `koanf:"chain_family"`
	Chains         []string `koanf:"chains"`  // CAIP-2 ids
	Methods        []string `koanf:"methods"` // "*" for wildcard
	Priority       string   `koanf:"priority"` // normal, backup
	URLTemplate    string   `koanf:"url_template"`
	Archive        bool     `koanf:"archive"`
	TimeoutMS      int      `koanf:"timeout_ms"`
}

// AdmissionConfig configures the Admit stage checks that sit outside the
// rate limiter: project-id validation and the OFAC country block list.
type AdmissionConfig struct {
	ValidateProjectID    bool     `koanf:"validate_project_id"`
	OFACBlockedCountries []string `koanf:"ofac_blocked_countries"`
}

// ResponseCacheConfig carries the whitelist of cacheable RPC methods and
// their TTLs (Open Question resolution #2, see DESIGN.md).
type ResponseCacheConfig struct {
	Enabled bool                     `koanf:"enabled"`
	Methods map[string]time.Duration `koanf:"methods"`
}

// HealthFeedbackConfig configures the periodic re-weighting loop.
type HealthFeedbackConfig struct {
	Interval      time.Duration `koanf:"interval"`
	Window        time.Duration `koanf:"window"`
	StaleAfter    time.Duration `koanf:"stale_after"`
}

// AdminConfig configures the internal control-plane API's listener and
// bearer auth.
type AdminConfig struct {
	Port         int           `koanf:"port"`
	JWTSecret    string        `koanf:"jwt_secret"`
	Issuer       string        `koanf:"issuer"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	PasswordHash string        `koanf:"password_hash"` // argon2id-encoded operator password for the admin Token procedure (/admin.v1.AdminService/Token)
}

// Validate checks required fields and normalizes defaults in place.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.RateLimit.MaxTokens < 0 {
		errs = append(errs, "rate_limit.max_tokens must be non-negative")
	}

	if c.Selector.MaxRetries < 0 {
		errs = append(errs, "selector.max_retries must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
