package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Auth      AuthConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Bulk      BulkConfig
	Roles     RolesConfig
	Audit     AuditConfig
	Queue     QueueConfig
	Archive   ArchiveConfig
	Tracing   TracingConfig
	Metadata  MetadataConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string
	Env     string
	Debug   bool
	Version string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration // Per-request handler timeout
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level          string
	Format         string
	SkipHealthLogs bool
}

// AuthConfig holds access token validation settings. Tokens are issued
// upstream; the console only validates them.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// RateLimitConfig holds per-client HTTP rate limiting configuration.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	CleanupInterval time.Duration
}

// BulkConfig holds bulk operation execution settings.
type BulkConfig struct {
	// MaxBatchSize is the largest accepted number of distinct targets.
	MaxBatchSize int
	// Workers bounds the items of one operation running at once.
	Workers int
	// ItemTimeout bounds each user store and audit call.
	ItemTimeout time.Duration
	// RetentionPeriod keeps finished operations queryable.
	RetentionPeriod time.Duration
	SweepInterval   time.Duration
	// DispatchRate caps item dispatches per second per operation. Zero disables pacing.
	DispatchRate float64
	// DistributedLocks serializes same-user mutations across instances via Redis.
	DistributedLocks bool
	LockTTL          time.Duration
}

// Role source values.
const (
	RoleSourcePostgres = "postgres"
	RoleSourceFile     = "file"
)

// RolesConfig holds role hierarchy loading settings.
type RolesConfig struct {
	Source   string
	FilePath string
	// RefreshSchedule is a cron spec; empty disables scheduled reloads.
	RefreshSchedule string
	// CacheTTL caches the provider result in Redis when Redis is enabled.
	CacheTTL time.Duration
}

// Audit modes.
const (
	AuditModeSync  = "sync"
	AuditModeQueue = "queue"
)

// AuditConfig holds audit delivery settings.
type AuditConfig struct {
	Mode    string
	Timeout time.Duration
}

// QueueConfig holds background job settings.
type QueueConfig struct {
	Concurrency int
	MaxRetry    int
}

// ArchiveConfig holds S3 result archive settings.
type ArchiveConfig struct {
	Enabled   bool
	Bucket    string
	Region    string
	Prefix    string
	Endpoint  string
	AuthType  string // "keys" or "sts_role"
	AccessKey string
	SecretKey string
	RoleARN   string
	Timeout   time.Duration
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	ServiceName string
}

// MetadataConfig holds display metadata settings.
type MetadataConfig struct {
	// CatalogPath overrides the built-in catalog when set.
	CatalogPath string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "admin-console"),
			Env:     getEnv("APP_ENV", "development"),
			Debug:   getEnvBool("APP_DEBUG", false),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "console"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "console"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:       getEnvBool("REDIS_ENABLED", true),
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
		},
		Log: LogConfig{
			Level:          getEnv("LOG_LEVEL", "info"),
			Format:         getEnv("LOG_FORMAT", "json"),
			SkipHealthLogs: getEnvBool("LOG_SKIP_HEALTH", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvInt("CORS_MAX_AGE", 86400),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec:  getEnvFloat("RATE_LIMIT_RPS", 20),
			Burst:           getEnvInt("RATE_LIMIT_BURST", 40),
			CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP", time.Minute),
		},
		Bulk: BulkConfig{
			MaxBatchSize:     getEnvInt("BULK_MAX_BATCH_SIZE", 500),
			Workers:          getEnvInt("BULK_WORKERS", 5),
			ItemTimeout:      getEnvDuration("BULK_ITEM_TIMEOUT", 10*time.Second),
			RetentionPeriod:  getEnvDuration("BULK_RETENTION_PERIOD", time.Hour),
			SweepInterval:    getEnvDuration("BULK_SWEEP_INTERVAL", time.Minute),
			DispatchRate:     getEnvFloat("BULK_DISPATCH_RATE", 0),
			DistributedLocks: getEnvBool("BULK_DISTRIBUTED_LOCKS", false),
			LockTTL:          getEnvDuration("BULK_LOCK_TTL", 30*time.Second),
		},
		Roles: RolesConfig{
			Source:          getEnv("ROLES_SOURCE", RoleSourcePostgres),
			FilePath:        getEnv("ROLES_FILE_PATH", ""),
			RefreshSchedule: getEnv("ROLES_REFRESH_SCHEDULE", "@every 5m"),
			CacheTTL:        getEnvDuration("ROLES_CACHE_TTL", time.Minute),
		},
		Audit: AuditConfig{
			Mode:    getEnv("AUDIT_MODE", AuditModeSync),
			Timeout: getEnvDuration("AUDIT_TIMEOUT", 5*time.Second),
		},
		Queue: QueueConfig{
			Concurrency: getEnvInt("QUEUE_CONCURRENCY", 10),
			MaxRetry:    getEnvInt("QUEUE_MAX_RETRY", 10),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvBool("ARCHIVE_ENABLED", false),
			Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
			Region:    getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Prefix:    getEnv("ARCHIVE_S3_PREFIX", "bulk-operations"),
			Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
			AuthType:  getEnv("ARCHIVE_S3_AUTH_TYPE", "keys"),
			AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
			RoleARN:   getEnv("ARCHIVE_S3_ROLE_ARN", ""),
			Timeout:   getEnvDuration("ARCHIVE_TIMEOUT", 30*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBool("TRACING_OTLP_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1.0),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "admin-console"),
		},
		Metadata: MetadataConfig{
			CatalogPath: getEnv("METADATA_CATALOG_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateBulk(); err != nil {
		return err
	}
	if err := c.validateRoles(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be between 0.0 and 1.0, got %f", c.Tracing.SampleRatio)
	}
	return nil
}

func (c *Config) validateLog() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if c.Log.Level != "" && !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	return nil
}

func (c *Config) validateBulk() error {
	b := c.Bulk
	if b.MaxBatchSize < 1 {
		return fmt.Errorf("BULK_MAX_BATCH_SIZE must be at least 1, got %d", b.MaxBatchSize)
	}
	if b.Workers < 1 || b.Workers > 100 {
		return fmt.Errorf("BULK_WORKERS must be between 1 and 100, got %d", b.Workers)
	}
	if b.ItemTimeout <= 0 {
		return fmt.Errorf("BULK_ITEM_TIMEOUT must be positive, got %v", b.ItemTimeout)
	}
	if b.RetentionPeriod <= 0 {
		return fmt.Errorf("BULK_RETENTION_PERIOD must be positive, got %v", b.RetentionPeriod)
	}
	if b.DispatchRate < 0 {
		return fmt.Errorf("BULK_DISPATCH_RATE must be non-negative, got %f", b.DispatchRate)
	}
	if b.DistributedLocks {
		if !c.Redis.Enabled {
			return fmt.Errorf("BULK_DISTRIBUTED_LOCKS requires REDIS_ENABLED")
		}
		if b.LockTTL <= b.ItemTimeout {
			return fmt.Errorf("BULK_LOCK_TTL (%v) must exceed BULK_ITEM_TIMEOUT (%v)", b.LockTTL, b.ItemTimeout)
		}
	}
	return nil
}

func (c *Config) validateRoles() error {
	switch c.Roles.Source {
	case RoleSourcePostgres:
	case RoleSourceFile:
		if c.Roles.FilePath == "" {
			return fmt.Errorf("ROLES_FILE_PATH is required when ROLES_SOURCE=file")
		}
	default:
		return fmt.Errorf("invalid ROLES_SOURCE: %s (must be postgres or file)", c.Roles.Source)
	}
	if c.Roles.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Roles.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid ROLES_REFRESH_SCHEDULE %q: %w", c.Roles.RefreshSchedule, err)
		}
	}
	return nil
}

func (c *Config) validateAudit() error {
	switch c.Audit.Mode {
	case AuditModeSync:
	case AuditModeQueue:
		if !c.Redis.Enabled {
			return fmt.Errorf("AUDIT_MODE=queue requires REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("invalid AUDIT_MODE: %s (must be sync or queue)", c.Audit.Mode)
	}
	if c.Audit.Timeout <= 0 {
		return fmt.Errorf("AUDIT_TIMEOUT must be positive, got %v", c.Audit.Timeout)
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_S3_BUCKET is required when ARCHIVE_ENABLED")
	}
	switch c.Archive.AuthType {
	case "keys":
		if (c.Archive.AccessKey == "") != (c.Archive.SecretKey == "") {
			return fmt.Errorf("ARCHIVE_S3_ACCESS_KEY and ARCHIVE_S3_SECRET_KEY must be set together")
		}
	case "sts_role":
		if c.Archive.RoleARN == "" {
			return fmt.Errorf("ARCHIVE_S3_ROLE_ARN is required for sts_role auth")
		}
	default:
		return fmt.Errorf("invalid ARCHIVE_S3_AUTH_TYPE: %s (must be keys or sts_role)", c.Archive.AuthType)
	}
	return nil
}

func (c *Config) validateProduction() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters in production")
	}
	if c.App.Debug {
		return fmt.Errorf("APP_DEBUG must be false in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("DB_SSLMODE must not be disable in production")
	}
	if slices.Contains(c.CORS.AllowedOrigins, "*") {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must not contain * in production")
	}
	if c.Redis.Enabled {
		return c.validateProductionRedis()
	}
	return nil
}

func (c *Config) validateProductionRedis() error {
	if c.Redis.Password == "" {
		return fmt.Errorf("REDIS_PASSWORD is required in production")
	}
	if !c.Redis.TLSEnabled {
		return fmt.Errorf("REDIS_TLS_ENABLED must be true in production")
	}
	if c.Redis.TLSSkipVerify {
		return fmt.Errorf("REDIS_TLS_SKIP_VERIFY must be false in production")
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
