package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/regulens/vectorkb/pkg/config"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the knowledge base to a JSON snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a snapshot or seed file (JSON or YAML)",
	Long: `Import entities and relationships from a snapshot file. JSON snapshots
are imported directly; YAML seed files are converted first. The import is
all-or-nothing: a bad record rejects the whole file.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	data, err := kb.ExportJSON(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Printf("Exported snapshot to %s (%d bytes)\n", args[0], len(data))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
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

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	switch filepath.Ext(args[0]) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return fmt.Errorf("convert YAML seed: %w", err)
		}
	}

	if err := kb.ImportJSON(ctx, data); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Printf("Imported snapshot from %s\n", args[0])
	return nil
}

// yamlToJSON converts a YAML seed document into snapshot JSON so the same
// import path (and its field names) applies to both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(doc))
}

// normalizeYAML rewrites map[any]any (yaml.v3 nested maps) into
// map[string]any so encoding/json accepts the document.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
