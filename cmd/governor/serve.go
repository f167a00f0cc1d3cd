package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ethervoxai/governor/internal/config"
	"github.com/ethervoxai/governor/internal/events"
	"github.com/ethervoxai/governor/internal/governor"
	"github.com/ethervoxai/governor/internal/summarizer"
	"github.com/ethervoxai/governor/internal/usage"
)

// sessionPool lazily constructs one Governor session per session id
// read from stdin, so independent conversations keep independent
// KV-cache state. serve's input line format is "session_id: query";
// a bare line with no "session_id:" prefix uses the default session.
// The pool also owns the process-wide extras every session shares:
// the progress event bus, the execution-accounting store, and the
// checkpoint database.
type sessionPool struct {
	mu       sync.Mutex
	cfg      *config.Config
	logger   *slog.Logger
	sessions map[string]*session

	bus          *events.Bus
	usageStore   *usage.Store // nil when the usage db could not open
	checkpointDB *sql.DB      // nil when the checkpoint db could not open
}

func newSessionPool(cfg *config.Config, logger *slog.Logger, bus *events.Bus) *sessionPool {
	p := &sessionPool{cfg: cfg, logger: logger, sessions: map[string]*session{}, bus: bus}

	// Accounting and checkpointing are best-effort: a failure to open
	// either database degrades observability, not conversations.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Warn("serve: data dir unavailable", "path", cfg.DataDir, "error", err)
		return p
	}
	us, err := usage.NewStore(cfg.UsageDB())
	if err != nil {
		logger.Warn("serve: usage store unavailable", "path", cfg.UsageDB(), "error", err)
	} else {
		p.usageStore = us
	}

	db, err := sql.Open("sqlite3", cfg.CheckpointDB())
	if err != nil {
		logger.Warn("serve: checkpoint db unavailable", "path", cfg.CheckpointDB(), "error", err)
	} else {
		p.checkpointDB = db
	}

	return p
}

func (p *sessionPool) get(ctx context.Context, sessionID string) (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sess, ok := p.sessions[sessionID]; ok {
		return sess, nil
	}

	sess, err := newSession(p.cfg, p.logger, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.loadModel(p.cfg); err != nil {
		sess.gov.Cleanup()
		return nil, fmt.Errorf("load model for session %q: %w", sessionID, err)
	}

	if p.checkpointDB != nil {
		if err := sess.attachCheckpointer(p.checkpointDB, p.cfg, p.logger); err != nil {
			p.logger.Warn("serve: checkpointer unavailable", "session", sessionID, "error", err)
		}
	}

	sess.transcripts = summarizer.New(sess.mem, p.cfg.TranscriptsDir(), p.bus, p.logger, summarizer.Config{})
	sess.transcripts.Start(ctx)

	p.sessions[sessionID] = sess
	return sess, nil
}

// recordUsage persists one Execute call's accounting; a nil usage
// store makes it a no-op.
func (p *sessionPool) recordUsage(ctx context.Context, sessionID string, status governor.Status, m governor.ExecutionMetrics) {
	if p.usageStore == nil {
		return
	}
	rec := usage.Record{
		SessionID:       sessionID,
		Model:           p.cfg.Model.Path,
		Status:          status.String(),
		Iterations:      m.IterationCount,
		ToolCalls:       m.ToolCallsMade,
		GeneratedTokens: m.GeneratedTokens,
		ElapsedMS:       m.Elapsed.Milliseconds(),
	}
	if err := p.usageStore.Record(ctx, rec); err != nil {
		p.logger.Warn("serve: usage record failed", "session", sessionID, "error", err)
	}
}

func (p *sessionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sess := range p.sessions {
		sess.close(p.logger)
	}
	if p.usageStore != nil {
		p.usageStore.Close()
	}
	if p.checkpointDB != nil {
		p.checkpointDB.Close()
	}
}

func buildServeCmd() *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold a REPL loop over stdin, dispatching each turn to its session's Governor",
		Long: `serve reads lines of the form "session_id: query" from stdin (a bare
line with no prefix uses the default session) and prints each answer to
stdout prefixed with its session id. Turns for distinct sessions run
concurrently — each session owns an independently loaded model context
— while turns within one session are serialized by serve, each waiting
for the session's previous turn to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := events.New()
			if showProgress {
				ch := bus.Subscribe(64)
				defer bus.Unsubscribe(ch)
				go func() {
					for ev := range ch {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s [%s] %s %v\n",
							ev.Timestamp.Format(time.TimeOnly), ev.Session, ev.Kind, ev.Data["message"])
					}
				}()
			}

			pool := newSessionPool(cfg, logger, bus)
			defer pool.closeAll()

			group, gctx := errgroup.WithContext(ctx)
			scanner := bufio.NewScanner(cmd.InOrStdin())

			// One mutex per session id: the Governor rejects a second
			// concurrent Execute, so same-session turns wait here.
			var turnLocks sync.Map

			for scanner.Scan() {
				if gctx.Err() != nil {
					break
				}
				line := scanner.Text()
				if strings.TrimSpace(line) == "" {
					continue
				}
				sessionID, query := splitTurn(line)

				group.Go(func() error {
					sess, err := pool.get(gctx, sessionID)
					if err != nil {
						logger.Error("serve: session setup failed", "session", sessionID, "error", err)
						return nil
					}

					lk, _ := turnLocks.LoadOrStore(sessionID, &sync.Mutex{})
					turnMu := lk.(*sync.Mutex)
					turnMu.Lock()
					defer turnMu.Unlock()

					status, response, execErr, metrics := sess.gov.Execute(
						gctx, query, sess.dispatchContext(sessionID),
						bus.ProgressPublisher(sessionID), nil)
					pool.recordUsage(gctx, sessionID, status, metrics)
					if sess.checkpointer != nil {
						sess.checkpointer.OnTurn()
					}
					if status != governor.StatusSuccess {
						logger.Warn("serve: execute did not succeed", "session", sessionID,
							"status", status, "iterations", metrics.IterationCount, "error", execErr)
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", sessionID, response)
					return nil
				})
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("serve: read stdin: %w", err)
			}

			return group.Wait()
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", false, "print progress events to stderr")
	return cmd
}

// splitTurn parses a "session_id: query" line; a line without a colon
// (or whose prefix contains whitespace, meaning it is not actually a
// session id) is treated as a bare query for the "default" session.
func splitTurn(line string) (sessionID, query string) {
	if idx := strings.Index(line, ":"); idx > 0 {
		prefix := line[:idx]
		if !strings.ContainsAny(prefix, " \t") {
			return prefix, strings.TrimSpace(line[idx+1:])
		}
	}
	return "default", line
}
