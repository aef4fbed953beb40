package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort    string
	AdminSecret string
	JWTSecret   []byte
	Database    DatabaseConfig
	Cache       CacheConfig
	Redis       RedisConfig
	Backend     BackendConfig
	Limits      LimitsConfig
	UsageQueue  UsageQueueConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds credential cache settings
type CacheConfig struct {
	CredentialCacheSize int
	CredentialCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings (optional, usage queue only)
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// BackendConfig holds Ollama backend settings
type BackendConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	PullTimeout  time.Duration
}

// LimitsConfig holds per-credential defaults applied at key creation time
type LimitsConfig struct {
	DefaultRateLimitPerMin   int
	DefaultMonthlyTokenLimit int64
	KeyPrefix                string
}

// UsageQueueConfig holds settings for the async usage recorder
type UsageQueueConfig struct {
	UseRedis     bool
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:    getEnvString("HTTP_PORT", "8080"),
		AdminSecret: getEnvString("ADMIN_SECRET", ""),
		JWTSecret:   []byte(getEnvString("JWT_SECRET", "")),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			CredentialCacheSize: getEnvInt("CACHE_CREDENTIAL_SIZE", 1000),
			CredentialCacheTTL:  getEnvDuration("CACHE_CREDENTIAL_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			Address:  getEnvString("REDIS_ADDRESS", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Backend: BackendConfig{
			BaseURL:      getEnvString("OLLAMA_BASE_URL", "http://localhost:11434"),
			DefaultModel: getEnvString("OLLAMA_DEFAULT_MODEL", "qwen2.5:7b"),
			Timeout:      getEnvDuration("OLLAMA_TIMEOUT", 120*time.Second),
			PullTimeout:  getEnvDuration("OLLAMA_PULL_TIMEOUT", 10*time.Minute),
		},
		Limits: LimitsConfig{
			DefaultRateLimitPerMin:   getEnvInt("DEFAULT_RATE_LIMIT_PER_MIN", 20),
			DefaultMonthlyTokenLimit: getEnvInt64("DEFAULT_MONTHLY_TOKEN_LIMIT", 1_000_000),
			KeyPrefix:                getEnvString("API_KEY_PREFIX", "llm"),
		},
		UsageQueue: UsageQueueConfig{
			UseRedis:     getEnvBool("USAGE_QUEUE_USE_REDIS", false),
			BatchSize:    getEnvInt("USAGE_QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("USAGE_QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("USAGE_QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("USAGE_QUEUE_RETRY_BACKOFF", 1*time.Second),
		},
	}

	if cfg.AdminSecret == "" {
		return nil, fmt.Errorf("ADMIN_SECRET is required")
	}
	if len(cfg.JWTSecret) == 0 {
		// Admin JWT login is optional; fall back to the admin secret so token
		// validation never runs with an empty key.
		cfg.JWTSecret = []byte(cfg.AdminSecret)
	}

	return cfg, nil
}
