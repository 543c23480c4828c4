package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regulens/vectorkb/pkg/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiry sweep across every retention tier",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	kb, err := newEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer kb.Close()

	ctx := context.Background()
	if err := kb.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	removed := kb.CleanupExpired(ctx)
	total := 0
	for policy, count := range removed {
		if count > 0 {
			fmt.Printf("%s: removed %d\n", policy, count)
		}
		total += count
	}
	fmt.Printf("Sweep complete: %d entities removed\n", total)
	return nil
}
