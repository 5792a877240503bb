package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Reservation ReservationConfig
	CRMSync     CRMSyncConfig
	Connector   ConnectorConfig
	Event       EventConfig
	Storage     StorageConfig
	Security    SecurityConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// AutoMigrate applies the embedded schema on server start
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings.
// When disabled the sweeper falls back to an in-process lock.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	RequestTimeout time.Duration
	RateLimitRPS   float64 // Per tenant; 0 disables the limiter
	RateLimitBurst int
}

// ReservationConfig holds stock hold settings
type ReservationConfig struct {
	SweepInterval      time.Duration // How often lapsed holds are expired
	SweepBatchSize     int
	DefaultHoldMinutes int // Used when a request omits the duration
	LeaderLockTTL      time.Duration
	SweepEnabled       bool
}

// CRMSyncConfig holds CRM synchronization settings
type CRMSyncConfig struct {
	QPS              float64 // Token bucket refill rate per system
	Burst            int
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	MaxCustomers     int // Upper bound for a single SyncAll run
	SchedulerWorkers int
	SchedulerEnabled bool
	HistorySize      int
}

// ConnectorConfig holds outbound connector settings
type ConnectorConfig struct {
	HTTPTimeout time.Duration
	CacheSize   int // Per-tenant connector LRU size
	MaxRetries  int
}

// EventConfig holds domain event transport configuration
type EventConfig struct {
	Transport    string // memory, amqp, kafka
	AMQPURL      string
	AMQPExchange string
	KafkaBrokers []string
	KafkaTopic   string
}

// StorageConfig holds S3-compatible storage settings for sync report archives
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// SecurityConfig holds secrets used at rest
type SecurityConfig struct {
	CredentialsKey string // 32 bytes, hex or raw, used to seal integration credentials
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
	// Signals besides traces
	MetricsEnabled   bool
	MetricsInterval  time.Duration
	LogsEnabled      bool
	ProfilingEnabled bool
	PyroscopeURL     string
	// ProfileTypes lists pyroscope profile names (cpu, alloc_space, mutex_count...)
	ProfileTypes []string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with COCCINELLE_ prefix (e.g., COCCINELLE_DATABASE_PASSWORD)
// 2. A .env file in the working directory, which never overrides the real environment
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("COCCINELLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout: v.GetDuration("http.request_timeout"),
			RateLimitRPS:   v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst: v.GetInt("http.rate_limit_burst"),
		},
		Reservation: ReservationConfig{
			SweepInterval:      v.GetDuration("reservation.sweep_interval"),
			SweepBatchSize:     v.GetInt("reservation.sweep_batch_size"),
			DefaultHoldMinutes: v.GetInt("reservation.default_hold_minutes"),
			LeaderLockTTL:      v.GetDuration("reservation.leader_lock_ttl"),
			SweepEnabled:       !v.IsSet("reservation.sweep_enabled") || v.GetBool("reservation.sweep_enabled"),
		},
		CRMSync: CRMSyncConfig{
			QPS:              v.GetFloat64("crm_sync.qps"),
			Burst:            v.GetInt("crm_sync.burst"),
			MaxRetries:       v.GetInt("crm_sync.max_retries"),
			BackoffBase:      v.GetDuration("crm_sync.backoff_base"),
			BackoffMax:       v.GetDuration("crm_sync.backoff_max"),
			MaxCustomers:     v.GetInt("crm_sync.max_customers"),
			SchedulerWorkers: v.GetInt("crm_sync.scheduler_workers"),
			SchedulerEnabled: v.GetBool("crm_sync.scheduler_enabled"),
			HistorySize:      v.GetInt("crm_sync.history_size"),
		},
		Connector: ConnectorConfig{
			HTTPTimeout: v.GetDuration("connector.http_timeout"),
			CacheSize:   v.GetInt("connector.cache_size"),
			MaxRetries:  v.GetInt("connector.max_retries"),
		},
		Event: EventConfig{
			Transport:    v.GetString("event.transport"),
			AMQPURL:      v.GetString("event.amqp_url"),
			AMQPExchange: v.GetString("event.amqp_exchange"),
			KafkaBrokers: v.GetStringSlice("event.kafka_brokers"),
			KafkaTopic:   v.GetString("event.kafka_topic"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
		Security: SecurityConfig{
			CredentialsKey: v.GetString("security.credentials_key"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeURL:      v.GetString("telemetry.pyroscope_url"),
			ProfileTypes:      v.GetStringSlice("telemetry.profile_types"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "coccinelle-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "coccinelle"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 20
	}
	if cfg.Reservation.SweepInterval == 0 {
		cfg.Reservation.SweepInterval = time.Minute
	}
	if cfg.Reservation.SweepBatchSize == 0 {
		cfg.Reservation.SweepBatchSize = 500
	}
	if cfg.Reservation.DefaultHoldMinutes == 0 {
		cfg.Reservation.DefaultHoldMinutes = 15
	}
	if cfg.Reservation.LeaderLockTTL == 0 {
		cfg.Reservation.LeaderLockTTL = 50 * time.Second
	}
	if cfg.CRMSync.QPS == 0 {
		cfg.CRMSync.QPS = 5
	}
	if cfg.CRMSync.Burst == 0 {
		cfg.CRMSync.Burst = 5
	}
	if cfg.CRMSync.MaxRetries == 0 {
		cfg.CRMSync.MaxRetries = 3
	}
	if cfg.CRMSync.BackoffBase == 0 {
		cfg.CRMSync.BackoffBase = 30 * time.Second
	}
	if cfg.CRMSync.BackoffMax == 0 {
		cfg.CRMSync.BackoffMax = 30 * time.Minute
	}
	if cfg.CRMSync.MaxCustomers == 0 {
		cfg.CRMSync.MaxCustomers = 1000
	}
	if cfg.CRMSync.SchedulerWorkers == 0 {
		cfg.CRMSync.SchedulerWorkers = 2
	}
	if cfg.CRMSync.HistorySize == 0 {
		cfg.CRMSync.HistorySize = 100
	}
	if cfg.Connector.HTTPTimeout == 0 {
		cfg.Connector.HTTPTimeout = 10 * time.Second
	}
	if cfg.Connector.CacheSize == 0 {
		cfg.Connector.CacheSize = 256
	}
	if cfg.Connector.MaxRetries == 0 {
		cfg.Connector.MaxRetries = 3
	}
	if cfg.Event.Transport == "" {
		cfg.Event.Transport = "memory"
	}
	if cfg.Event.AMQPExchange == "" {
		cfg.Event.AMQPExchange = "coccinelle.events"
	}
	if cfg.Event.KafkaTopic == "" {
		cfg.Event.KafkaTopic = "coccinelle.events"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "sync-reports"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "coccinelle-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if len(cfg.Telemetry.ProfileTypes) == 0 {
		cfg.Telemetry.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Security.CredentialsKey == "" {
			return fmt.Errorf("security.credentials_key is required in production")
		}
	}

	if c.Reservation.LeaderLockTTL < c.Reservation.SweepInterval/2 {
		return fmt.Errorf("reservation.leader_lock_ttl (%s) must be at least half of reservation.sweep_interval (%s)",
			c.Reservation.LeaderLockTTL, c.Reservation.SweepInterval)
	}
	if c.CRMSync.QPS < 0 {
		return fmt.Errorf("crm_sync.qps cannot be negative")
	}
	if c.CRMSync.BackoffBase > c.CRMSync.BackoffMax {
		return fmt.Errorf("crm_sync.backoff_base cannot exceed crm_sync.backoff_max")
	}

	switch c.Event.Transport {
	case "memory":
	case "amqp":
		if c.Event.AMQPURL == "" {
			return fmt.Errorf("event.amqp_url is required when event.transport is amqp")
		}
	case "kafka":
		if len(c.Event.KafkaBrokers) == 0 {
			return fmt.Errorf("event.kafka_brokers is required when event.transport is kafka")
		}
	default:
		return fmt.Errorf("event.transport must be one of memory, amqp, kafka, got %q", c.Event.Transport)
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
