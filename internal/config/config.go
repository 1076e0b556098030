package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Faucet   FaucetConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	// PostgresDSN selects postgres when set; empty falls back to a local
	// sqlite file.
	PostgresDSN  string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr     string
	Enabled  bool
	CacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers  []string
	Enabled  bool
	MockMode bool
	Topics   TopicConfig
}

type TopicConfig struct {
	EventCreated  string
	TicketCreated string
	JoinedEvent   string
	CheckedIn     string
	Withdrawn     string
}

type FaucetConfig struct {
	// Enabled exposes the airdrop endpoint. Dev deployments only.
	Enabled bool
	// MaxAirdrop caps a single airdrop request, in lamports.
	MaxAirdrop uint64
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			PostgresDSN:  getEnv("POSTGRES_DSN", ""),
			SQLitePath:   getEnv("SQLITE_PATH", "file:escrow.db?cache=shared"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			CacheTTL: time.Duration(getEnvInt("REDIS_CACHE_TTL_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Enabled:  getEnvBool("KAFKA_ENABLED", false),
			MockMode: getEnvBool("KAFKA_MOCK_MODE", true),
			Topics: TopicConfig{
				EventCreated:  getEnv("KAFKA_TOPIC_EVENT_CREATED", "escrow-event-created"),
				TicketCreated: getEnv("KAFKA_TOPIC_TICKET_CREATED", "escrow-ticket-created"),
				JoinedEvent:   getEnv("KAFKA_TOPIC_JOINED_EVENT", "escrow-joined-event"),
				CheckedIn:     getEnv("KAFKA_TOPIC_CHECKED_IN", "escrow-checked-in"),
				Withdrawn:     getEnv("KAFKA_TOPIC_WITHDRAWN", "escrow-withdrawn"),
			},
		},
		Faucet: FaucetConfig{
			Enabled:    getEnvBool("FAUCET_ENABLED", true),
			MaxAirdrop: uint64(getEnvInt("FAUCET_MAX_AIRDROP", 10_000_000_000)),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
