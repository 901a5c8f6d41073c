package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	RateLimit  RateLimitConfig
	Security   SecurityConfig
	CORS       CORSConfig
	Explorers  ExplorersConfig
	Circuit    CircuitConfig
	Retry      RetryConfig
	Detection  DetectionConfig
	MultiChain MultiChainConfig
	Probe      ProbeConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// StorageConfig holds shared cache configuration
type StorageConfig struct {
	Type     string // "memory", "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// AuthConfig holds settings for the mutating ops endpoints
type AuthConfig struct {
	APIKey string // empty disables auth
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool
	ServiceName string
}

// RateLimitConfig holds per-IP rate limiting settings for the ops API
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// SecurityConfig holds request limits
type SecurityConfig struct {
	MaxBodySizeMB int
}

// CORSConfig holds allowed origins for the ops API
type CORSConfig struct {
	AllowedOrigins []string
}

// CircuitConfig holds health tracker and circuit breaker thresholds
type CircuitConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration
	ScoreFloor       float64
	HealthyThreshold float64
	LatencyTarget    time.Duration
	RecordTTL        time.Duration
}

// RetryConfig holds manager retry settings
type RetryConfig struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxRateLimitWait time.Duration
	SelectionTTL     time.Duration
}

// DetectionConfig holds chain detector settings
type DetectionConfig struct {
	Workers  int
	Timeout  time.Duration
	CacheTTL time.Duration
}

// MultiChainConfig holds orchestration settings
type MultiChainConfig struct {
	Workers int
}

// ProbeConfig holds the server's periodic connectivity probe settings
type ProbeConfig struct {
	Interval time.Duration // zero disables the loop
}

// Load loads configuration from environment variables, after applying an optional .env file
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 120),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 90),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/chainscout.db"),
			},
		},
		Auth: AuthConfig{
			APIKey: getEnv("OPS_API_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:     getEnvBool("METRICS_ENABLED", true),
			ServiceName: getEnv("METRICS_SERVICE_NAME", "chainscout"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 1),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Circuit: CircuitConfig{
			FailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			FailureWindow:    getEnvSeconds("CIRCUIT_FAILURE_WINDOW_SECONDS", 5*time.Minute),
			Cooldown:         getEnvSeconds("CIRCUIT_COOLDOWN_SECONDS", 60*time.Second),
			ScoreFloor:       getEnvFloat("CIRCUIT_SCORE_FLOOR", 0.3),
			HealthyThreshold: getEnvFloat("HEALTHY_SCORE_THRESHOLD", 0.7),
			LatencyTarget:    getEnvMillis("LATENCY_TARGET_MS", 2*time.Second),
			RecordTTL:        getEnvSeconds("HEALTH_RECORD_TTL_SECONDS", 24*time.Hour),
		},
		Retry: RetryConfig{
			MaxAttempts:      getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:        getEnvMillis("RETRY_BASE_DELAY_MS", time.Second),
			MaxDelay:         getEnvMillis("RETRY_MAX_DELAY_MS", 5*time.Second),
			MaxRateLimitWait: getEnvMillis("RATE_LIMIT_MAX_WAIT_MS", 2*time.Second),
			SelectionTTL:     getEnvSeconds("EXPLORER_SELECTION_TTL_SECONDS", 5*time.Minute),
		},
		Detection: DetectionConfig{
			Workers:  getEnvInt("DETECTION_WORKERS", 3),
			Timeout:  getEnvSeconds("DETECTION_TIMEOUT_SECONDS", 10*time.Second),
			CacheTTL: getEnvSeconds("DETECTION_CACHE_TTL_SECONDS", time.Hour),
		},
		MultiChain: MultiChainConfig{
			Workers: getEnvInt("MULTICHAIN_WORKERS", 4),
		},
		Probe: ProbeConfig{
			Interval: getEnvSeconds("PROBE_INTERVAL_SECONDS", 0),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	explorers, err := LoadExplorers(getEnv("EXPLORERS_CONFIG", ""))
	if err != nil {
		return nil, fmt.Errorf("loading explorers: %w", err)
	}
	cfg.Explorers = explorers

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
