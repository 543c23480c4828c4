package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/regulens/vectorkb"
	"github.com/regulens/vectorkb/pkg/config"
	"github.com/regulens/vectorkb/pkg/embedder"
	"github.com/regulens/vectorkb/pkg/search"
	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/telemetry"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "vectorkb",
		Short: "VectorKB: compliance knowledge base engine",
		Long: `VectorKB is a vector knowledge base engine for compliance platforms.
It stores knowledge entities with embeddings, serves similarity and hybrid
search, maintains a typed relationship graph, tiers memory by retention
policy, and tunes entity confidence from interaction feedback.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vectorkb.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vectorkb")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the slog logger from config: tinted text or JSON, with
// error records teed into Parquet telemetry when enabled.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.ParquetPath != "" {
		wrapped, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath)
		if err != nil {
			return nil, fmt.Errorf("telemetry handler: %w", err)
		}
		handler = wrapped
	}

	return slog.New(handler), nil
}

// newDriver builds the configured storage backend.
func newDriver(cfg *config.Config, logger *slog.Logger) (store.Driver, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresDriver(store.PostgresConfig{
			ConnectionString: cfg.Database.URI,
			UsePgVector:      cfg.Database.UsePgVector,
			MaxOpenConns:     cfg.Database.MaxOpenConns,
			MaxIdleConns:     cfg.Database.MaxIdleConns,
		}, cfg.Embedding.Dimensions, logger)
	case "badger":
		return store.NewBadgerDriver(store.BadgerConfig{
			Path:     cfg.Database.URI,
			InMemory: cfg.Database.InMemory,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q (want postgres or badger)", cfg.Database.Driver)
	}
}

// newEmbedder builds the configured embedding client behind the TTL cache.
func newEmbedder(cfg *config.Config) (embedder.Client, error) {
	var client embedder.Client
	switch cfg.Embedding.Provider {
	case "openai":
		openaiClient, err := embedder.NewOpenAIClient(&embedder.Config{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		client = openaiClient
	case "hash", "":
		client = embedder.NewHashClient(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want hash or openai)", cfg.Embedding.Provider)
	}
	return embedder.NewCachingClient(client, cfg.Embedding.CacheTTL, cfg.Embedding.CacheSize), nil
}

// newEngine wires the full knowledge base from config.
func newEngine(cfg *config.Config, logger *slog.Logger) (*vectorkb.Engine, error) {
	driver, err := newDriver(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("storage driver: %w", err)
	}
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return vectorkb.NewEngine(driver, emb, &vectorkb.Config{
		Hybrid: search.HybridConfig{
			VectorWeight:  cfg.Search.VectorWeight,
			KeywordWeight: cfg.Search.KeywordWeight,
		},
		Retention:     cfg.Retention.Windows,
		SweepInterval: cfg.Retention.SweepInterval,
	}, logger)
}
