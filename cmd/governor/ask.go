package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethervoxai/governor/internal/governor"
)

func buildAskCmd() *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Run a single query through the Governor and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			sess, err := newSession(cfg, logger, "")
			if err != nil {
				return err
			}
			defer sess.gov.Cleanup()

			if err := sess.loadModel(cfg); err != nil {
				return fmt.Errorf("load model: %w", err)
			}

			var progressCB governor.ProgressCallback
			if showProgress {
				progressCB = func(ev governor.ProgressEvent) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", ev.Kind, ev.Message)
				}
			}
			tokenCB := func(text string) {
				fmt.Fprint(cmd.OutOrStdout(), text)
			}

			status, response, execErr, metrics := sess.gov.Execute(
				context.Background(), args[0], sess.dispatchContext(sess.mem.SessionID()), progressCB, tokenCB)

			fmt.Fprintln(cmd.OutOrStdout())
			if status != governor.StatusSuccess {
				return fmt.Errorf("execute: status=%s iterations=%d tool_calls=%d: %w",
					status, metrics.IterationCount, metrics.ToolCallsMade, execErr)
			}
			if response == "" && execErr != nil {
				return execErr
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", false, "print progress events to stderr")
	return cmd
}
