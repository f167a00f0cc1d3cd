// Package main is the entry point for the Governor CLI.
//
// The LLM inference backend is an external collaborator (see
// internal/llm): this binary does not link one. A deployment adds a
// blank import of its chosen backend driver package here (following
// the database/sql convention — the driver registers itself under a
// name via llm.Register from an init func) and names that driver in
// model.backend in its config file.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethervoxai/governor/internal/buildinfo"
	"github.com/ethervoxai/governor/internal/config"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "governor",
		Short:        "Governor - deterministic LLM reasoning and tool orchestration",
		Version:      buildinfo.String(),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAskCmd(),
		buildOptimizePromptsCmd(),
		buildReplayLogCmd(),
		buildExportMemoryCmd(),
	)
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		if l, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
			level = l
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
