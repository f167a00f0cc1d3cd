package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethervoxai/governor/internal/memstore"
	"github.com/ethervoxai/governor/internal/paths"
)

func buildExportMemoryCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export-memory <session_id> <path>",
		Short: "Reconstruct a session from its append log and export it",
		Long: `export-memory replays the append log of a closed session from the
memory directory and writes the reconstructed store to <path> as a
single JSON document or as human-readable markdown. <path> may use a
storage-area prefix (memory:, transcripts:, archive:, models:), which
resolves against the configured data directory.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			sessionID := args[0]
			dest, err := paths.Storage(cfg.DataDir).Resolve(args[1])
			if err != nil {
				return err
			}

			store := memstore.New(logger)
			if err := store.InitFromLog(sessionID, cfg.MemoryDir()); err != nil {
				return fmt.Errorf("replay session %q: %w", sessionID, err)
			}
			defer store.Cleanup()

			n, err := store.Export(dest, format)
			if err != nil {
				return fmt.Errorf("export to %s: %w", dest, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "session=%s entries=%d bytes=%d path=%s\n",
				store.SessionID(), store.EntryCount(), n, dest)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", `export format: "json" or "markdown"`)
	return cmd
}
