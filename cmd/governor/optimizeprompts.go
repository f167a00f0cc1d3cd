package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethervoxai/governor/internal/governor"
	"github.com/ethervoxai/governor/internal/promptopt"
)

// governorQuestioner adapts a session's Governor to promptopt's narrow
// questioner interface: one question in, one answer out, no progress
// or token streaming. It lives in cmd/governor, not internal/promptopt,
// so promptopt never needs to import governor or registry directly.
type governorQuestioner struct {
	sess *session
}

func (q *governorQuestioner) Ask(ctx context.Context, question string) (string, error) {
	status, response, err, _ := q.sess.gov.Execute(
		ctx, question, q.sess.dispatchContext(q.sess.mem.SessionID()), nil, nil)
	if status != governor.StatusSuccess {
		return "", fmt.Errorf("ask: status=%s: %w", status, err)
	}
	return response, nil
}

func buildOptimizePromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize-prompts",
		Short: "Interview the loaded model about its tool-calling style and persist the result",
		Args:  cobra.NoArgs,
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

			opt := promptopt.New(&governorQuestioner{sess: sess}, sess.registry, cfg.DataDir)

			doc, err := opt.Run(context.Background(), cfg.Model.Path)
			if err != nil {
				return fmt.Errorf("optimize-prompts: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "persisted %s (%d tool prompts)\n",
				promptopt.OutputPath(cfg.DataDir, promptopt.FamilyName(cfg.Model.Path)), len(doc.Tools))
			if instruction := sess.lastStartupInstruction(); instruction != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "startup instruction: %s\n", instruction)
			}
			return nil
		},
	}
}
