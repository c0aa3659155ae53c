package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Storage struct {
	DataDir     string
	MarketsFile string // YAML registry; empty uses the built-in currencies
}

type API struct {
	Addr          string
	CORSOrigins   []string
	FundingAPIKey string // empty disables /funding
	AuthMode      string // "signature" or "header"
	ChainID       int64  // EIP-712 domain chain id
}

type Settlement struct {
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
	// RetryMultiplier grows the backoff per retry; RetryJitter is 0.0 to 1.0
	RetryMultiplier float64
	RetryJitter     float64
	// AuditInterval is how often the reconciliation audit runs in the
	// background. Zero disables it.
	AuditInterval time.Duration
}

type Kafka struct {
	Brokers []string // empty disables the event stream
	Topic   string
}

type Log struct {
	Level string
	File  string
}

type Config struct {
	Storage    Storage
	API        API
	Settlement Settlement
	Kafka      Kafka
	Log        Log
}

func Default() Config {
	return Config{
		Storage: Storage{
			DataDir: "data/spotex",
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			AuthMode:    "signature",
			ChainID:     1337,
		},
		Settlement: Settlement{
			MaxRetries:    10,
			RetryInitial:  time.Millisecond,
			RetryMax:        50 * time.Millisecond,
			RetryMultiplier: 2,
			RetryJitter:     0.5,
			AuditInterval:   time.Minute,
		},
		Kafka: Kafka{
			Topic: "spotex.events",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.MarketsFile = getEnv("MARKETS_FILE", cfg.Storage.MarketsFile)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.CORSOrigins = getList("CORS_ORIGINS", cfg.API.CORSOrigins)
	cfg.API.FundingAPIKey = getEnv("FUNDING_API_KEY", cfg.API.FundingAPIKey)
	cfg.API.AuthMode = strings.ToLower(getEnv("AUTH_MODE", cfg.API.AuthMode))
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.API.ChainID = id
		}
	}

	if v := os.Getenv("SETTLEMENT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settlement.MaxRetries = n
		}
	}
	cfg.Settlement.RetryInitial = getDuration("SETTLEMENT_RETRY_INITIAL_MS", time.Millisecond, cfg.Settlement.RetryInitial)
	cfg.Settlement.RetryMax = getDuration("SETTLEMENT_RETRY_MAX_MS", time.Millisecond, cfg.Settlement.RetryMax)
	cfg.Settlement.RetryMultiplier = getFloat("SETTLEMENT_RETRY_MULTIPLIER", cfg.Settlement.RetryMultiplier)
	cfg.Settlement.RetryJitter = getFloat("SETTLEMENT_RETRY_JITTER", cfg.Settlement.RetryJitter)
	cfg.Settlement.AuditInterval = getDuration("AUDIT_INTERVAL_S", time.Second, cfg.Settlement.AuditInterval)

	// Brokers from comma-separated list, e.g. "kafka-1:9092,kafka-2:9092"
	cfg.Kafka.Brokers = getList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getDuration reads an integer count of unit
func getDuration(key string, unit, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return time.Duration(n) * unit
}

func getFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return defaultValue
	}
	return f
}
