// Package summarizer provides a background worker that writes
// per-session transcript digests into the transcripts directory of the
// standard storage layout. This decouples digest generation from
// session lifecycle events, so a readable record of the conversation
// exists even when a session ends during process shutdown.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethervoxai/governor/internal/events"
	"github.com/ethervoxai/governor/internal/memstore"
)

// Config controls the summarizer worker behavior.
type Config struct {
	// Interval between periodic digest writes. Default: 5 minutes.
	Interval time.Duration

	// WindowSize is how many recent turns each digest covers.
	// Default: 20.
	WindowSize int

	// FocusTopic optionally restricts the digest to entries whose text
	// contains this topic. Empty means the whole window.
	FocusTopic string
}

// DefaultConfig returns sensible defaults for the summarizer worker.
func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		WindowSize: 20,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
}

// Worker periodically digests a session's memory store into a
// markdown transcript file.
type Worker struct {
	mem    *memstore.Store
	dir    string
	bus    *events.Bus // nil disables event publication
	logger *slog.Logger
	config Config

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a summarizer worker writing digests for mem into dir.
// bus may be nil. Call Start to begin periodic processing, or
// WriteDigest for a single synchronous write.
func New(mem *memstore.Store, dir string, bus *events.Bus, logger *slog.Logger, cfg Config) *Worker {
	cfg.applyDefaults()
	return &Worker{
		mem:    mem,
		dir:    dir,
		bus:    bus,
		logger: logger.With("component", "summarizer"),
		config: cfg,
		done:   make(chan struct{}),
	}
}

// Start begins the background digest worker. It writes an immediate
// digest on startup (to catch up after a crash), then rewrites it
// periodically at the configured interval.
func (w *Worker) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(workerCtx)
}

// Stop halts the worker and writes one final digest so the transcript
// reflects the session's end state. Blocks until the worker goroutine
// exits.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	if _, err := w.WriteDigest(); err != nil {
		w.logger.Warn("final digest write failed", "error", err)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	if _, err := w.WriteDigest(); err != nil {
		w.logger.Warn("initial digest write failed", "error", err)
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.WriteDigest(); err != nil {
				w.logger.Warn("digest write failed", "error", err)
			}
		}
	}
}

// WriteDigest writes the current digest file and returns its path. A
// session with no entries yet produces no file and an empty path.
func (w *Worker) WriteDigest() (string, error) {
	if w.mem.EntryCount() == 0 {
		return "", nil
	}

	summary, keyPoints := w.mem.Summarize(w.config.WindowSize, w.config.FocusTopic)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcripts dir: %w", err)
	}

	sessionID := w.mem.SessionID()
	path := filepath.Join(w.dir, sessionID+".md")

	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sessionID)
	fmt.Fprintf(&b, "_Updated %s — %d entries stored._\n\n", time.Now().UTC().Format(time.RFC3339), w.mem.EntryCount())
	if w.config.FocusTopic != "" {
		fmt.Fprintf(&b, "_Focused on: %s_\n\n", w.config.FocusTopic)
	}
	fmt.Fprintf(&b, "## Summary\n\n%s\n", summary)
	if len(keyPoints) > 0 {
		b.WriteString("\n## Key points\n\n")
		for _, p := range keyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write digest %s: %w", path, err)
	}

	w.logger.Debug("transcript digest written", "path", path)
	w.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceTranscript,
		Kind:      events.KindTranscriptWritten,
		Session:   sessionID,
		Data:      map[string]any{"path": path},
	})

	return path, nil
}
