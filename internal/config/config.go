package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file - ignore error if file doesn't exist
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Note: .env file not found or could not be loaded: %v\n", err)
	}
}

type Config struct {
	Primary       PrimaryConfig
	Database      DatabaseConfig
	Server        ServerConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Gateway       GatewayConfig
	Notifier      NotifierConfig
	Policy        PolicyConfig
	Observability *ObservabilityConfig
}

type PrimaryConfig struct {
	Env string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	IdleTimeout        int
	CORSAllowedOrigins []string
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
	KeyPrefix    string
}

type KafkaConfig struct {
	Brokers []string
}

// GatewayConfig holds credentials for the external payment processor.
type GatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// NotifierConfig points at the notification/messaging collaborator.
type NotifierConfig struct {
	BaseURL string
	Token   string
}

// PolicyConfig carries tunable business rules. These are injected at
// construction time, never read from ambient globals.
type PolicyConfig struct {
	AutoApprove        bool
	HoldPeriod         time.Duration
	PlatformFeePercent float64
	PayoutMaxAttempts  int
	PayoutRetryBackoff time.Duration
	PayoutBatchSize    int
	SweepInterval      time.Duration
	PayoutInterval     time.Duration
	WebhookRetention   time.Duration
	RateLimitPerMinute int64
}

type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	Logging      LoggingConfig
	NewRelic     NewRelicConfig
	HealthChecks HealthChecksConfig
}

type LoggingConfig struct {
	Level              string
	Format             string
	SlowQueryThreshold time.Duration
}

type NewRelicConfig struct {
	LicenseKey                string
	AppLogForwardingEnabled   bool
	DistributedTracingEnabled bool
	DebugLogging              bool
}

type HealthChecksConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Checks   []string
}

// Helper functions for parsing env vars
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}

func (c *ObservabilityConfig) GetLogLevel() string {
	if c.Logging.Level == "" {
		switch c.Environment {
		case "production":
			return "info"
		case "development":
			return "debug"
		default:
			return "info"
		}
	}
	return c.Logging.Level
}

func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Primary: PrimaryConfig{
			Env: getEnv("HEARTH_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("HEARTH_DB_HOST", "localhost"),
			Port:            getEnvInt("HEARTH_DB_PORT", 5432),
			User:            getEnv("HEARTH_DB_USER", "hearth"),
			Password:        getEnv("HEARTH_DB_PASSWORD", ""),
			Name:            getEnv("HEARTH_DB_NAME", "hearth"),
			SSLMode:         getEnv("HEARTH_DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("HEARTH_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("HEARTH_DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvInt("HEARTH_DB_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("HEARTH_DB_CONN_MAX_IDLE_TIME", 60),
		},
		Server: ServerConfig{
			Port:               getEnv("HEARTH_SERVER_PORT", "8080"),
			ReadTimeout:        getEnvInt("HEARTH_SERVER_READ_TIMEOUT", 30),
			WriteTimeout:       getEnvInt("HEARTH_SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:        getEnvInt("HEARTH_SERVER_IDLE_TIMEOUT", 60),
			CORSAllowedOrigins: getEnvSlice("HEARTH_SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Address:      getEnv("HEARTH_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("HEARTH_REDIS_PASSWORD", ""),
			DB:           getEnvInt("HEARTH_REDIS_DB", 0),
			PoolSize:     getEnvInt("HEARTH_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("HEARTH_REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("HEARTH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("HEARTH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("HEARTH_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getEnvDuration("HEARTH_REDIS_LOCK_TTL", 30*time.Second),
			KeyPrefix:    getEnv("HEARTH_REDIS_KEY_PREFIX", "hearth:"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("HEARTH_KAFKA_BROKERS", []string{"localhost:9092"}),
		},
		Gateway: GatewayConfig{
			SecretKey:     getEnv("HEARTH_GATEWAY_SECRET_KEY", ""),
			WebhookSecret: getEnv("HEARTH_GATEWAY_WEBHOOK_SECRET", ""),
			BaseURL:       getEnv("HEARTH_GATEWAY_BASE_URL", "https://api.payments.example.com"),
			Timeout:       getEnvDuration("HEARTH_GATEWAY_TIMEOUT", 5*time.Second),
		},
		Notifier: NotifierConfig{
			BaseURL: getEnv("HEARTH_NOTIFIER_BASE_URL", "http://localhost:8090"),
			Token:   getEnv("HEARTH_NOTIFIER_TOKEN", ""),
		},
		Policy: PolicyConfig{
			AutoApprove:        getEnvBool("HEARTH_POLICY_AUTO_APPROVE", false),
			HoldPeriod:         getEnvDuration("HEARTH_POLICY_HOLD_PERIOD", 24*time.Hour),
			PlatformFeePercent: getEnvFloat("HEARTH_POLICY_PLATFORM_FEE_PERCENT", 15),
			PayoutMaxAttempts:  getEnvInt("HEARTH_POLICY_PAYOUT_MAX_ATTEMPTS", 5),
			PayoutRetryBackoff: getEnvDuration("HEARTH_POLICY_PAYOUT_RETRY_BACKOFF", 1*time.Hour),
			PayoutBatchSize:    getEnvInt("HEARTH_POLICY_PAYOUT_BATCH_SIZE", 100),
			SweepInterval:      getEnvDuration("HEARTH_POLICY_SWEEP_INTERVAL", 24*time.Hour),
			PayoutInterval:     getEnvDuration("HEARTH_POLICY_PAYOUT_INTERVAL", 24*time.Hour),
			WebhookRetention:   getEnvDuration("HEARTH_POLICY_WEBHOOK_RETENTION", 30*24*time.Hour),
			RateLimitPerMinute: getEnvInt64("HEARTH_POLICY_RATE_LIMIT_PER_MINUTE", 120),
		},
		Observability: &ObservabilityConfig{
			ServiceName: "Hearth",
			Environment: getEnv("HEARTH_ENV", "development"),
			Logging: LoggingConfig{
				Level:              getEnv("HEARTH_LOG_LEVEL", "debug"),
				Format:             getEnv("HEARTH_LOG_FORMAT", "console"),
				SlowQueryThreshold: getEnvDuration("HEARTH_LOG_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
			},
			NewRelic: NewRelicConfig{
				LicenseKey:                getEnv("HEARTH_NEWRELIC_LICENSE_KEY", ""),
				AppLogForwardingEnabled:   getEnvBool("HEARTH_NEWRELIC_LOG_FORWARDING", true),
				DistributedTracingEnabled: getEnvBool("HEARTH_NEWRELIC_DISTRIBUTED_TRACING", true),
				DebugLogging:              getEnvBool("HEARTH_NEWRELIC_DEBUG", false),
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  getEnvBool("HEARTH_HEALTHCHECK_ENABLED", true),
				Interval: getEnvDuration("HEARTH_HEALTHCHECK_INTERVAL", 30*time.Second),
				Timeout:  getEnvDuration("HEARTH_HEALTHCHECK_TIMEOUT", 5*time.Second),
				Checks:   getEnvSlice("HEARTH_HEALTHCHECK_CHECKS", []string{"database", "redis"}),
			},
		},
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("HEARTH_DB_HOST is required")
	}
	if cfg.Database.Name == "" {
		return nil, fmt.Errorf("HEARTH_DB_NAME is required")
	}
	if cfg.Policy.PlatformFeePercent < 0 || cfg.Policy.PlatformFeePercent > 100 {
		return nil, fmt.Errorf("HEARTH_POLICY_PLATFORM_FEE_PERCENT must be between 0 and 100")
	}

	return cfg, nil
}
