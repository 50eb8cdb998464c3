// Package config loads dcbstore's configuration from the environment,
// following the plain os.Getenv-with-fallback style of the teacher's
// internal/web-app/main.go rather than introducing a config-file parser.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dcbstore/pkg/dcb"
)

// Config is the fully-resolved process configuration for cmd/walletd:
// database connection, store behavior, and the Event Processor
// Runtime's polling and leadership parameters.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32
	DBMinConns int32

	HTTPAddr   string
	InstanceID string

	Store dcb.EventStoreConfig

	PersistCommands bool

	ProcessorPollInterval  time.Duration
	ProcessorLeaseDuration time.Duration
	ProcessorMaxErrors     int

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads Config from the environment, matching the teacher's
// pattern of a documented default for every variable so the process
// still starts cleanly outside Docker Compose.
func Load() Config {
	cfg := Config{
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "dcbstore"),
		DBPassword: getenv("DB_PASSWORD", "dcbstore"),
		DBName:     getenv("DB_NAME", "dcbstore"),
		DBMaxConns: int32(getenvInt("DB_MAX_CONNS", 20)),
		DBMinConns: int32(getenvInt("DB_MIN_CONNS", 5)),

		HTTPAddr:   getenv("HTTP_ADDR", ":8080"),
		InstanceID: getenv("INSTANCE_ID", uuid.NewString()),

		Store: dcb.EventStoreConfig{
			MaxBatchSize:           getenvInt("STORE_MAX_BATCH_SIZE", 1000),
			StreamBuffer:           getenvInt("STORE_STREAM_BUFFER", 1000),
			DefaultAppendIsolation: parseIsolation(getenv("STORE_APPEND_ISOLATION", "READ_COMMITTED")),
			QueryTimeoutMs:         getenvInt("STORE_QUERY_TIMEOUT_MS", 15000),
			AppendTimeoutMs:        getenvInt("STORE_APPEND_TIMEOUT_MS", 10000),
		},

		PersistCommands: getenvBool("PERSIST_COMMANDS", true),

		ProcessorPollInterval:  time.Duration(getenvInt("PROCESSOR_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		ProcessorLeaseDuration: time.Duration(getenvInt("PROCESSOR_LEASE_SECONDS", 30)) * time.Second,
		ProcessorMaxErrors:     getenvInt("PROCESSOR_MAX_ERRORS", 5),

		KafkaTopic: getenv("KAFKA_TOPIC", "dcbstore-events"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

// DSN builds the postgres:// connection string pgxpool.ParseConfig
// expects.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseIsolation(s string) dcb.IsolationLevel {
	switch s {
	case "SERIALIZABLE":
		return dcb.IsolationLevelSerializable
	case "REPEATABLE_READ":
		return dcb.IsolationLevelRepeatableRead
	default:
		return dcb.IsolationLevelReadCommitted
	}
}
