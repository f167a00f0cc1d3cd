package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ethervoxai/governor/internal/memstore"
	"github.com/ethervoxai/governor/internal/paths"
)

func buildReplayLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay-log <path>",
		Short: "Replay a memory append-log file and print the reconstructed entry count",
		Long: `replay-log reads a .jsonl append log and rebuilds the in-memory store
from it, printing the reconstructed entry and tag counts. <path> may
use a storage-area prefix (memory:, archive:), which resolves against
the configured data directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			path, err := paths.Storage(cfg.DataDir).Resolve(args[0])
			if err != nil {
				return err
			}
			dir := filepath.Dir(path)
			sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")

			store := memstore.New(logger)
			if err := store.InitFromLog(sessionID, dir); err != nil {
				return fmt.Errorf("replay %s: %w", path, err)
			}
			defer store.Cleanup()

			fmt.Fprintf(cmd.OutOrStdout(), "session=%s entries=%d tags=%d\n",
				store.SessionID(), store.EntryCount(), store.TagIndexCount())
			return nil
		},
	}
}
