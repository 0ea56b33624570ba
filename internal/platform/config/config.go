// Package config builds typed configuration from environment variables so
// main stays lean. Defaults favor local development; production overrides
// everything secret-bearing.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration root.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Retention RetentionConfig
	Ledger    LedgerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Sweep     SweepConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr          string
	JWTSigningKey string
}

// DatabaseConfig configures Postgres. Empty DSN disables it and the
// in-memory stores are used instead — development and tests only.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RetentionConfig carries the policy knobs of the eligibility engine.
// Thresholds are configuration, not hard-coded constants.
type RetentionConfig struct {
	// MinHoldReason is the minimum justification length for a legal hold.
	MinHoldReason int
	// MinDisposalReason is the minimum justification length for a disposal;
	// long enough to force a real justification, not a checkbox.
	MinDisposalReason int
	// DefaultHoldDuration applies when a hold is placed without an explicit
	// expiry.
	DefaultHoldDuration time.Duration
	// StatutoryMinYears / StatutoryMaxYears bound acceptable statutory
	// period inputs.
	StatutoryMinYears int
	StatutoryMaxYears int
	// BulkMaxRecords bounds bulk status updates.
	BulkMaxRecords int
	// DefaultPageSize / MaxPageSize bound eligibility listings.
	DefaultPageSize int
	MaxPageSize     int
}

// LedgerConfig configures the hash chain and external anchoring.
type LedgerConfig struct {
	// FingerprintSalt is the process-wide secret salt. Required outside
	// development.
	FingerprintSalt string
	// AnchorURL is the external timestamping service; empty disables
	// anchoring and certificates stay visibly unanchored.
	AnchorURL     string
	AnchorTimeout time.Duration
}

// RedisConfig configures the posture cache backend. Empty URL disables
// Redis and the in-memory cache is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PostureTTL   time.Duration
}

// KafkaConfig configures the audit publisher. No brokers disables Kafka and
// audit events stay in process.
type KafkaConfig struct {
	Brokers  []string
	ClientID string
}

// SweepConfig configures the scheduled disposal sweep.
type SweepConfig struct {
	Enabled bool
	// Schedule is a cron expression.
	Schedule string
	// StatutoryYears applied by the sweep.
	StatutoryYears int
	PageSize       int
	// TenantConcurrency bounds how many tenant sweeps run in parallel.
	// Within a tenant the sweep is strictly sequential.
	TenantConcurrency int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:          envString("CUSTODIA_ADDR", ":8080"),
			JWTSigningKey: envString("CUSTODIA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Database: DatabaseConfig{
			DSN:             os.Getenv("CUSTODIA_DATABASE_URL"),
			MaxOpenConns:    envInt("CUSTODIA_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("CUSTODIA_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("CUSTODIA_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Retention: RetentionConfig{
			MinHoldReason:       envInt("CUSTODIA_MIN_HOLD_REASON", 10),
			MinDisposalReason:   envInt("CUSTODIA_MIN_DISPOSAL_REASON", 20),
			DefaultHoldDuration: envDuration("CUSTODIA_DEFAULT_HOLD_DURATION", 365*24*time.Hour),
			StatutoryMinYears:   envInt("CUSTODIA_STATUTORY_MIN_YEARS", 1),
			StatutoryMaxYears:   envInt("CUSTODIA_STATUTORY_MAX_YEARS", 99),
			BulkMaxRecords:      envInt("CUSTODIA_BULK_MAX_RECORDS", 500),
			DefaultPageSize:     envInt("CUSTODIA_DEFAULT_PAGE_SIZE", 50),
			MaxPageSize:         envInt("CUSTODIA_MAX_PAGE_SIZE", 500),
		},
		Ledger: LedgerConfig{
			FingerprintSalt: envString("CUSTODIA_FINGERPRINT_SALT", "dev-salt-change-in-production"),
			AnchorURL:       os.Getenv("CUSTODIA_ANCHOR_URL"),
			AnchorTimeout:   envDuration("CUSTODIA_ANCHOR_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CUSTODIA_REDIS_URL"),
			PoolSize:     envInt("CUSTODIA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CUSTODIA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CUSTODIA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CUSTODIA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CUSTODIA_REDIS_WRITE_TIMEOUT", 3*time.Second),
			PostureTTL:   envDuration("CUSTODIA_POSTURE_CACHE_TTL", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:  envList("CUSTODIA_KAFKA_BROKERS"),
			ClientID: envString("CUSTODIA_KAFKA_CLIENT_ID", "custodia"),
		},
		Sweep: SweepConfig{
			Enabled:           envBool("CUSTODIA_SWEEP_ENABLED", false),
			Schedule:          envString("CUSTODIA_SWEEP_SCHEDULE", "0 2 * * *"),
			StatutoryYears:    envInt("CUSTODIA_SWEEP_STATUTORY_YEARS", 7),
			PageSize:          envInt("CUSTODIA_SWEEP_PAGE_SIZE", 100),
			TenantConcurrency: envInt("CUSTODIA_SWEEP_TENANT_CONCURRENCY", 4),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
