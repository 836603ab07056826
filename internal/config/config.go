package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	UseMockDB bool

	// MongoDB configuration
	MongoHost     string
	MongoPort     int
	MongoDatabase string
	MongoURI      string // Overrides host and port when set

	// ClickHouse activity journal, disabled when ClickHouseHost is empty
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// Telegram overdue notifier, disabled unless both are set
	TelegramToken  string
	TelegramChatID int64

	LogLevel  string
	LogOutput string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Use Mock DB (default: false)
	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"

	// MongoDB configuration (ignored when using mock)
	config.MongoURI = os.Getenv("MONGODB_URI")
	config.MongoHost = getEnv("MONGODB_HOST", "localhost")

	port, err := getEnvInt("MONGODB_PORT", 27017)
	if err != nil {
		return nil, err
	}
	config.MongoPort = port

	config.MongoDatabase = getEnv("MONGODB_DATABASE", "library_management")

	// ClickHouse configuration (optional)
	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost != "" {
		port, err := getEnvInt("CLICKHOUSE_PORT", 9000) // Default ClickHouse native port
		if err != nil {
			return nil, err
		}
		config.ClickHousePort = port

		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")

		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty

		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	// Telegram notifier (optional)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if chatIDStr := os.Getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		config.TelegramChatID = chatID
	}

	config.LogLevel = getEnv("LOG_LEVEL", "warn")
	config.LogOutput = getEnv("LOG_OUTPUT", "stderr")

	return config, nil
}

// MongoConnectionURI returns MONGODB_URI if set, otherwise a URI built from host and port
func (c *Config) MongoConnectionURI() string {
	if c.MongoURI != "" {
		return c.MongoURI
	}
	return fmt.Sprintf("mongodb://%s:%d", c.MongoHost, c.MongoPort)
}

// JournalEnabled reports whether activity should go to ClickHouse
func (c *Config) JournalEnabled() bool {
	return c.ClickHouseHost != ""
}

// NotifierEnabled reports whether overdue digests should go to Telegram
func (c *Config) NotifierEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
