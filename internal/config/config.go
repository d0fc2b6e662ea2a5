// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide configuration, loaded once at startup by Load.
type Config struct {
	DataDir  string // base directory for the ledger/cache SQLite files and CSV import drop folder
	LogLevel string
	Pretty   bool // pretty-print logs to a terminal instead of JSON
	Port     int  // HTTP status/health surface
	DevMode  bool

	Providers  ProviderConfig
	Dedup      DedupConfig
	Circuit    CircuitBreakerConfig
	CSVImport  CSVImportConfig
}

// ProviderConfig controls the shared behavior of every registered provider adapter.
type ProviderConfig struct {
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// DedupConfig sizes the in-memory dedup windows.
type DedupConfig struct {
	ProviderWindowSize int // validated only; each provider sets its own in-provider window size
	ManagerWindowSize  int // cross-provider window on the Provider Manager
}

// CircuitBreakerConfig sizes the circuit breaker state machine.
type CircuitBreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	CooldownPeriod   time.Duration
}

// CSVImportConfig controls the filesystem CSV adapter.
type CSVImportConfig struct {
	Directory string
}

// Load reads configuration from environment variables, falling back to a .env file in the
// working directory if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("EXITBOOK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = getEnv("DATA_DIR", "") // legacy name, kept for compatibility
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".exitbook", "data")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory to absolute: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", absDataDir, err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Pretty:   getEnvAsBool("LOG_PRETTY", false),
		Port:     getEnvAsInt("PORT", 8090),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Providers: ProviderConfig{
			RequestTimeout: time.Duration(getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRetries:     getEnvAsInt("PROVIDER_MAX_RETRIES", 3),
			RetryBackoff:   time.Duration(getEnvAsInt("PROVIDER_RETRY_BACKOFF_MS", 500)) * time.Millisecond,
		},
		Dedup: DedupConfig{
			ProviderWindowSize: getEnvAsInt("DEDUP_PROVIDER_WINDOW", 500),
			ManagerWindowSize:  getEnvAsInt("DEDUP_MANAGER_WINDOW", 500),
		},
		Circuit: CircuitBreakerConfig{
			FailureThreshold: getEnvAsInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			FailureWindow:    time.Duration(getEnvAsInt("CIRCUIT_FAILURE_WINDOW_SECONDS", 120)) * time.Second,
			CooldownPeriod:   time.Duration(getEnvAsInt("CIRCUIT_COOLDOWN_SECONDS", 30)) * time.Second,
		},
		CSVImport: CSVImportConfig{
			Directory: getEnv("CSV_IMPORT_DIR", filepath.Join(absDataDir, "csv-imports")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and internally consistent.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Dedup.ProviderWindowSize <= 0 || c.Dedup.ManagerWindowSize <= 0 {
		return fmt.Errorf("dedup window sizes must be positive")
	}
	if c.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}
	return nil
}

// LedgerPath is the path to the immutable raw/processed transaction database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// CachePath is the path to the ephemeral provider health / circuit breaker database.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
