// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/regulens/vectorkb/pkg/lifecycle"
	"github.com/regulens/vectorkb/pkg/types"
)

// Config holds all configuration for the engine and its HTTP facade.
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Search configuration
	Search SearchConfig `mapstructure:"search"`

	// Retention configuration
	Retention RetentionConfig `mapstructure:"retention"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds storage backend configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, badger
	// URI is the Postgres DSN or the badger data directory.
	URI string `mapstructure:"uri"`
	// UsePgVector enables native vector operators on Postgres.
	UsePgVector bool `mapstructure:"use_pgvector"`
	// InMemory runs badger without a data directory.
	InMemory bool `mapstructure:"in_memory"`

	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // hash, openai
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`

	// CacheTTL bounds how long embeddings are reused for identical text.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// CacheSize caps the embedding cache entry count.
	CacheSize int `mapstructure:"cache_size"`
}

// SearchConfig tunes the hybrid search merge.
type SearchConfig struct {
	VectorWeight  float64 `mapstructure:"vector_weight"`
	KeywordWeight float64 `mapstructure:"keyword_weight"`
}

// RetentionConfig holds the tier windows and sweeper cadence.
type RetentionConfig struct {
	Windows       lifecycle.Windows `mapstructure:"windows"`
	SweepInterval time.Duration     `mapstructure:"sweep_interval"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	// Database defaults
	viper.SetDefault("database.driver", "badger")
	viper.SetDefault("database.uri", "./vectorkb_data")
	viper.SetDefault("database.use_pgvector", true)
	viper.SetDefault("database.in_memory", false)
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)

	// Embedding defaults
	viper.SetDefault("embedding.provider", "hash")
	viper.SetDefault("embedding.dimensions", types.DefaultEmbeddingDimensions)
	viper.SetDefault("embedding.cache_ttl", time.Hour)
	viper.SetDefault("embedding.cache_size", 10000)

	// Search defaults
	viper.SetDefault("search.vector_weight", 0.65)
	viper.SetDefault("search.keyword_weight", 0.35)

	// Retention defaults
	viper.SetDefault("retention.windows.ephemeral", lifecycle.DefaultEphemeralWindow)
	viper.SetDefault("retention.windows.session", lifecycle.DefaultSessionWindow)
	viper.SetDefault("retention.windows.persistent", lifecycle.DefaultPersistentWindow)
	viper.SetDefault("retention.windows.archival", lifecycle.DefaultArchivalWindow)
	viper.SetDefault("retention.sweep_interval", lifecycle.DefaultSweepInterval)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.parquet_path", fmt.Sprintf("%s/.vectorkb/telemetry", home))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}
	if uri := os.Getenv("DB_URI"); uri != "" {
		config.Database.URI = uri
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Database.Driver = "postgres"
		config.Database.URI = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
		config.Telemetry.Enabled = true
	}
}
