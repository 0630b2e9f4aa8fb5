package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "WalletLedger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultServiceID       = "walletledger-dev"
	defaultAMQPExchange    = "ledger_events"
	defaultSnapshotBackend = SnapshotMemory
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Snapshot backends.
const (
	SnapshotMemory   = "memory"
	SnapshotRedis    = "redis"
	SnapshotPostgres = "postgres"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	ServiceID       string
	MasterKey       []byte
	DatabaseURL     string
	RedisURL        string
	AMQPURL         string
	AMQPExchange    string
	SnapshotBackend string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
}

// Load reads configuration values from a .env file, when present, and the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		ServiceID:       os.Getenv("SERVICE_ID"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		AMQPURL:         os.Getenv("AMQP_URL"),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", defaultAMQPExchange),
		SnapshotBackend: strings.ToLower(getEnv("SNAPSHOT_BACKEND", defaultSnapshotBackend)),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
	}

	d, err := durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar)
	if err != nil {
		return Config{}, err
	}
	if d > 0 {
		cfg.ShutdownPeriod = d
	}

	d, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar)
	if err != nil {
		return Config{}, err
	}
	if d > 0 {
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv("KEY_MASTER_SECRET"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil || len(key) != 32 {
			return Config{}, fmt.Errorf("KEY_MASTER_SECRET must be 64 hex characters")
		}
		cfg.MasterKey = key
	}

	switch cfg.SnapshotBackend {
	case SnapshotMemory:
	case SnapshotRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when SNAPSHOT_BACKEND=redis")
		}
	case SnapshotPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when SNAPSHOT_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", cfg.SnapshotBackend)
	}

	if cfg.IsDev() {
		if cfg.ServiceID == "" {
			cfg.ServiceID = defaultServiceID
		}
		return cfg, nil
	}

	if cfg.ServiceID == "" {
		return Config{}, fmt.Errorf("SERVICE_ID must be set")
	}
	if cfg.MasterKey == nil {
		return Config{}, fmt.Errorf("KEY_MASTER_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func durationFromEnv(secondsKey, durationKey string) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return 0, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
