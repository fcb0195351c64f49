package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	NATS          NATSConfig
	Gateway       GatewayConfig
	Webhook       WebhookConfig
	Session       SessionConfig
	Guard         GuardConfig
	Sweeper       SweeperConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the webhook dedupe cache configuration.
// An empty URL disables deduplication.
type RedisConfig struct {
	URL      string
	DedupTTL time.Duration
}

// NATSConfig holds domain event publishing configuration.
// An empty URL disables publishing.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// GatewayConfig holds billing provider configuration
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// WebhookConfig holds inbound payment webhook configuration
type WebhookConfig struct {
	Token string
}

// SessionConfig holds identity provider session configuration
type SessionConfig struct {
	JWTSecret  string
	Audience   string
	CookieName string
}

// GuardConfig holds access guard configuration
type GuardConfig struct {
	RemoteTimeout time.Duration
	// RemoteURL points at a separately deployed subscription API.
	// Empty means sync and expiration checks run in-process.
	RemoteURL string
}

// SweeperConfig holds the expiration sweeper schedule
type SweeperConfig struct {
	Enabled  bool
	Schedule string
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "clinicflow"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "clinicflow"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			DedupTTL: parseDuration("WEBHOOK_DEDUP_TTL", "24h"),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "billing"),
		},
		Gateway: GatewayConfig{
			BaseURL: getEnv("GATEWAY_API_URL", "https://sandbox.asaas.com/api/v3"),
			APIKey:  getEnv("GATEWAY_API_KEY", ""),
			Timeout: parseDuration("GATEWAY_TIMEOUT", "10s"),
		},
		Webhook: WebhookConfig{
			Token: getEnv("WEBHOOK_TOKEN", ""),
		},
		Session: SessionConfig{
			JWTSecret:  getEnv("SESSION_JWT_SECRET", ""),
			Audience:   getEnv("SESSION_JWT_AUDIENCE", "authenticated"),
			CookieName: getEnv("SESSION_COOKIE_NAME", "clinicflow_session"),
		},
		Guard: GuardConfig{
			RemoteTimeout: parseDuration("GUARD_REMOTE_TIMEOUT", "3s"),
			RemoteURL:     getEnv("GUARD_REMOTE_URL", ""),
		},
		Sweeper: SweeperConfig{
			Enabled:  parseBool("SWEEP_ENABLED", true),
			Schedule: getEnv("SWEEP_SCHEDULE", "@hourly"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "clinicflow"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Session.JWTSecret == "" {
		return fmt.Errorf("SESSION_JWT_SECRET is required")
	}
	if c.Guard.RemoteTimeout <= 0 {
		return fmt.Errorf("GUARD_REMOTE_TIMEOUT must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

func parseList(key string, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
