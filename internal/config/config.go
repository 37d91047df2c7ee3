package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port     string
	LogLevel string

	// Campaign grid
	GridWidth    int
	GridHeight   int
	CentsPerCell int64

	// Storage
	StoreBackend   string
	DatabaseURL    string
	QueryTimeout   time.Duration
	AllocTxTimeout time.Duration

	// Circuit breaker around store transactions
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	// WebSocket broadcast
	WSWriteTimeout time.Duration
	WSSendBuffer   int
}

func Load() Config {
	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		GridWidth:           getEnvInt("GRID_WIDTH", 200),
		GridHeight:          getEnvInt("GRID_HEIGHT", 200),
		CentsPerCell:        getEnvInt64("CENTS_PER_CELL", 2500),
		StoreBackend:        getEnv("STORE_BACKEND", StorePostgres),
		QueryTimeout:        getEnvDuration("QUERY_TIMEOUT", 5*time.Second),
		AllocTxTimeout:      getEnvDuration("ALLOC_TX_TIMEOUT", 30*time.Second),
		BreakerMaxFailures:  getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerResetTimeout: getEnvDuration("BREAKER_RESET_TIMEOUT", 10*time.Second),
		WSWriteTimeout:      getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		WSSendBuffer:        getEnvInt("WS_SEND_BUFFER", 64),
	}

	if cfg.StoreBackend == StorePostgres {
		cfg.DatabaseURL = getEnvRequired("DATABASE_URL")
	}

	return cfg
}

func getEnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable " + key + " is not set")
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
