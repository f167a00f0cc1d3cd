package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethervoxai/governor/internal/builtintools"
	"github.com/ethervoxai/governor/internal/checkpoint"
	"github.com/ethervoxai/governor/internal/config"
	"github.com/ethervoxai/governor/internal/governor"
	"github.com/ethervoxai/governor/internal/llm"
	"github.com/ethervoxai/governor/internal/memstore"
	"github.com/ethervoxai/governor/internal/registry"
	"github.com/ethervoxai/governor/internal/summarizer"
)

// session bundles the objects one Governor conversation needs: the
// tool registry, the memory store backing it, and the Governor itself.
// cmd subcommands build one of these and drive it directly (ask) or
// hand it to a concurrent session pool (serve). checkpointer and
// transcripts are optional extras serve attaches; ask leaves them nil.
type session struct {
	registry     *registry.Registry
	mem          *memstore.Store
	gov          *governor.Governor
	checkpointer *checkpoint.Checkpointer
	transcripts  *summarizer.Worker

	// mu guards startupInstruction: the startup_prompt_update callback
	// runs on whichever goroutine drives this session's Execute call,
	// while optimize-prompts reads the value afterwards.
	mu                 sync.Mutex
	startupInstruction string
}

// setStartupInstruction stashes the most recent startup_prompt_update
// instruction so optimize-prompts can report what it learned. Only
// optimize-prompts reads it back; serve and ask leave it unused.
func (s *session) setStartupInstruction(instruction string) {
	s.mu.Lock()
	s.startupInstruction = instruction
	s.mu.Unlock()
}

func (s *session) lastStartupInstruction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startupInstruction
}

func newSession(cfg *config.Config, logger *slog.Logger, sessionID string) (*session, error) {
	sess := &session{}

	reg := registry.New()
	if err := builtintools.Register(reg, sess.setStartupInstruction); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}

	mem := memstore.New(logger)
	if err := mem.Init(sessionID, cfg.MemoryDir()); err != nil {
		return nil, fmt.Errorf("init memory store: %w", err)
	}

	loader, err := llm.Open(cfg.Model.Backend)
	if err != nil {
		return nil, err
	}

	gov := governor.New(logger)
	govCfg := governor.Config{
		ConfidenceThreshold:      cfg.Governor.ConfidenceThreshold,
		MaxIterations:            cfg.Governor.MaxIterations,
		MaxToolCallsPerIteration: cfg.Governor.MaxToolCallsPerIteration,
		TimeoutSeconds:           cfg.Governor.TimeoutSeconds,
		MaxTokensPerResponse:     cfg.Governor.MaxTokensPerResponse,
	}
	if err := gov.Init(&govCfg, reg, loader, mem); err != nil {
		return nil, fmt.Errorf("init governor: %w", err)
	}

	sess.registry = reg
	sess.mem = mem
	sess.gov = gov
	return sess, nil
}

// attachCheckpointer wires periodic and shutdown snapshots of this
// session's memory store into the shared checkpoint database.
func (s *session) attachCheckpointer(db *sql.DB, cfg *config.Config, logger *slog.Logger) error {
	cp, err := checkpoint.NewCheckpointer(db, s.mem, checkpoint.Config{
		PeriodicTurns: cfg.Checkpoint.PeriodicTurns,
	}, logger)
	if err != nil {
		return fmt.Errorf("init checkpointer: %w", err)
	}
	s.checkpointer = cp
	return nil
}

// close tears a session down in dependency order: final transcript
// digest, shutdown checkpoint, then the Governor and memory store.
func (s *session) close(logger *slog.Logger) {
	if s.transcripts != nil {
		s.transcripts.Stop()
	}
	if s.checkpointer != nil {
		if _, err := s.checkpointer.CreateShutdown(); err != nil {
			logger.Warn("shutdown checkpoint failed", "session", s.mem.SessionID(), "error", err)
		}
	}
	s.gov.Cleanup()
	if err := s.mem.Cleanup(); err != nil {
		logger.Warn("memory store cleanup failed", "session", s.mem.SessionID(), "error", err)
	}
}

func (s *session) loadModel(cfg *config.Config) error {
	platform := registry.PlatformDesktop
	if cfg.PlatformID == "mobile" {
		platform = registry.PlatformMobile
	}

	opts := llm.LoadOptions{
		ContextWindow:    cfg.Model.ContextWindow,
		BatchSize:        cfg.Model.BatchSize,
		Threads:          cfg.Model.Threads,
		GPUOffloadLayers: cfg.Model.GPUOffloadLayers,
		FlashAttention:   cfg.Model.FlashAttention,
		KVCacheQuantBits: cfg.Model.KVCacheQuantBits,
		MemoryMapped:     cfg.Model.MemoryMapped,
	}
	return s.gov.LoadModel(context.Background(), cfg.Model.Path, platform, opts)
}

// dispatchContext builds the DispatchContext tools receive for
// this session's requests.
func (s *session) dispatchContext(sessionID string) registry.DispatchContext {
	return registry.DispatchContext{
		SessionID: sessionID,
		Memory:    memstore.RegistryAccessor{Store: s.mem},
	}
}
