package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	Worker   WorkerConfig
	Sweeper  SweeperConfig
	Ingest   IngestConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	MaxUploadBytes int64
	HealthInterval time.Duration
}

// StorageConfig holds raw statement byte storage configuration
type StorageConfig struct {
	LocalPath string
}

// WorkerConfig holds ingestion worker pool configuration
type WorkerConfig struct {
	Workers         int
	QueueSize       int
	ProcessTimeout  time.Duration
	FinalizeTimeout time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
}

// SweeperConfig holds the periodic stale-file sweeper configuration
type SweeperConfig struct {
	Enabled      bool
	Schedule     string
	PendingAfter time.Duration
	StaleAfter   time.Duration
}

// IngestConfig holds normalization defaults
type IngestConfig struct {
	Timezone        string
	DefaultCurrency string
	ChunkSize       int
	LayoutsFile     string
	Classifier      string // keyword | reference
	InboxDir        string // optional watched directory, laid out as <dir>/<account_id>/
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text | json
}

// LoadConfig loads configuration from a .env file (if present) and environment variables
func LoadConfig() *Config {
	// Existing environment wins over .env values.
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":8080"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 32<<20),
			HealthInterval: getEnvAsDuration("HEALTH_INTERVAL", 15*time.Second),
		},
		Storage: StorageConfig{
			LocalPath: getEnv("LOCAL_STORAGE_PATH", "uploads/"),
		},
		Worker: WorkerConfig{
			Workers:         getEnvAsInt("WORKERS", 4),
			QueueSize:       getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout:  getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
			FinalizeTimeout: getEnvAsDuration("FINALIZE_TIMEOUT", 10*time.Second),
			MaxAttempts:     getEnvAsInt("MAX_ATTEMPTS", 3),
			RetryBackoff:    getEnvAsDuration("RETRY_BACKOFF", 2*time.Second),
		},
		Sweeper: SweeperConfig{
			Enabled:      getEnvAsBool("SWEEP_ENABLED", true),
			Schedule:     getEnv("SWEEP_SCHEDULE", "*/5 * * * *"),
			PendingAfter: getEnvAsDuration("SWEEP_PENDING_AFTER", 10*time.Minute),
			StaleAfter:   getEnvAsDuration("SWEEP_STALE_AFTER", 30*time.Minute),
		},
		Ingest: IngestConfig{
			Timezone:        getEnv("INGEST_TIMEZONE", constants.DefaultTimezone),
			DefaultCurrency: strings.ToUpper(getEnv("INGEST_DEFAULT_CURRENCY", constants.DefaultCurrency)),
			ChunkSize:       getEnvAsInt("INGEST_CHUNK_SIZE", constants.DefaultChunkSize),
			LayoutsFile:     getEnv("INGEST_LAYOUTS_FILE", ""),
			Classifier:      strings.ToLower(getEnv("COUNTERPARTY_CLASSIFIER", "keyword")),
			InboxDir:        getEnv("INGEST_INBOX_DIR", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Storage.LocalPath == "" {
		return NewAppError("CONFIG_ERROR", "LOCAL_STORAGE_PATH is required", ErrInvalidInput)
	}
	if c.Ingest.ChunkSize <= 0 {
		return NewAppError("CONFIG_ERROR", "INGEST_CHUNK_SIZE must be positive", ErrInvalidInput)
	}
	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return NewAppError("CONFIG_ERROR", "INGEST_TIMEZONE is not a valid IANA zone", err)
	}
	if err := CurrencyCode("INGEST_DEFAULT_CURRENCY", c.Ingest.DefaultCurrency); err != nil {
		return NewAppError("CONFIG_ERROR", err.Error(), ErrInvalidInput)
	}
	// A job may hold PROCESSING for its timeout plus two finalize writes; the
	// sweeper must not fail it before then.
	if c.Sweeper.Enabled && c.Worker.ProcessTimeout > 0 {
		busy := c.Worker.ProcessTimeout + 2*c.Worker.FinalizeTimeout
		if c.Sweeper.StaleAfter <= busy {
			return NewAppError("CONFIG_ERROR",
				fmt.Sprintf("SWEEP_STALE_AFTER (%s) must exceed PROCESS_TIMEOUT plus twice FINALIZE_TIMEOUT (%s)", c.Sweeper.StaleAfter, busy),
				ErrInvalidInput)
		}
	}
	switch c.Ingest.Classifier {
	case "keyword", "reference":
	default:
		return NewAppError("CONFIG_ERROR", "COUNTERPARTY_CLASSIFIER must be keyword or reference", ErrInvalidInput)
	}
	return nil
}
