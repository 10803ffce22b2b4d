package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Encryption EncryptionConfig
	Email      EmailConfig
	SMS        SMSConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Logging    LoggingConfig
	AppURL     string
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// RedisConfig contains Redis configuration (cache and queue store)
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EncryptionConfig contains the credential vault master key.
// The key is 64 hex characters (32 bytes for AES-256).
type EncryptionConfig struct {
	MasterKey string
}

// EmailConfig contains the SendGrid transport configuration
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// SMSConfig contains the SMS gateway configuration
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// QueueConfig contains retry policies for the two durable queues
type QueueConfig struct {
	ScanAttempts      int
	ScanBackoffDelay  time.Duration
	ScanKeepCompleted int
	AlertAttempts     int
	AlertBackoffDelay time.Duration
	PollInterval      time.Duration
}

// WorkerConfig contains worker pool configuration
type WorkerConfig struct {
	Concurrency int
	ScanTimeout time.Duration
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "hostmaster"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./data.db"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Encryption: EncryptionConfig{
			MasterKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Email: EmailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("FROM_EMAIL", "noreply@hostmaster.com"),
			FromName:       getEnv("FROM_NAME", "HostMaster"),
		},
		SMS: SMSConfig{
			AccountSID: getEnv("SMS_ACCOUNT_SID", ""),
			AuthToken:  getEnv("SMS_AUTH_TOKEN", ""),
			FromNumber: getEnv("SMS_FROM_NUMBER", ""),
		},
		Queue: QueueConfig{
			ScanAttempts:      getEnvAsInt("QUEUE_SCAN_ATTEMPTS", 3),
			ScanBackoffDelay:  getEnvAsDuration("QUEUE_SCAN_BACKOFF", 2*time.Second),
			ScanKeepCompleted: getEnvAsInt("QUEUE_SCAN_KEEP_COMPLETED", 100),
			AlertAttempts:     getEnvAsInt("QUEUE_ALERT_ATTEMPTS", 2),
			AlertBackoffDelay: getEnvAsDuration("QUEUE_ALERT_BACKOFF", time.Second),
			PollInterval:      getEnvAsDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
			ScanTimeout: getEnvAsDuration("WORKER_SCAN_TIMEOUT", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		AppURL: getEnv("APP_URL", "https://app.hostmaster.com"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration. The master key check fails fast
// at startup rather than on the first scan.
func (c *Config) Validate() error {
	if c.Encryption.MasterKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY must be set (64 hex characters)")
	}
	if key, err := hex.DecodeString(c.Encryption.MasterKey); err != nil || len(key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
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

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
