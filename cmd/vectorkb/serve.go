package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/regulens/vectorkb/pkg/config"
	"github.com/regulens/vectorkb/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the VectorKB HTTP server",
	Long: `Start the VectorKB HTTP server to provide REST API access to the
knowledge base: entity CRUD, semantic and hybrid search, graph traversal,
memory lifecycle, learning feedback, snapshots, and health checks.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "Server host")
	serveCmd.Flags().Int("port", 8080, "Server port")
	serveCmd.Flags().String("mode", "release", "Server mode (debug, release, test)")
	serveCmd.Flags().String("db-driver", "", "Database driver (postgres, badger)")
	serveCmd.Flags().String("db-uri", "", "Database DSN or data directory")
	serveCmd.Flags().String("embedding-provider", "", "Embedding provider (hash, openai)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.mode", serveCmd.Flags().Lookup("mode"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	kb, err := newEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer func() {
		if err := kb.Close(); err != nil {
			logger.Error("closing knowledge base failed", "error", err)
		}
	}()

	ctx := context.Background()
	if err := kb.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	srv := server.New(cfg, kb, logger)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("db-driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v, _ := cmd.Flags().GetString("db-uri"); v != "" {
		cfg.Database.URI = v
	}
	if v, _ := cmd.Flags().GetString("embedding-provider"); v != "" {
		cfg.Embedding.Provider = v
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode, _ = cmd.Flags().GetString("mode")
	}
}
