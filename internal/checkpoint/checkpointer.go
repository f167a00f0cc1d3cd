package checkpoint

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshotter is the surface the checkpointer needs from the memory
// store. *memstore.Store satisfies it directly.
type Snapshotter interface {
	SessionID() string
	EntryCount() int
	TagIndexCount() int
	SnapshotJSON() ([]byte, error)
}

// Checkpointer manages automatic and manual checkpointing of one
// session's memory store.
type Checkpointer struct {
	store *Store
	log   *slog.Logger
	mem   Snapshotter

	// Config
	periodicInterval int // Create checkpoint every N turns (0 = disabled)

	// State
	mu         sync.Mutex
	turnsSince int // Turns since last checkpoint
}

// Config for the checkpointer.
type Config struct {
	PeriodicTurns int // Checkpoint every N turns (0 = disabled)
}

// NewCheckpointer creates a new checkpointer over mem, persisting to db.
func NewCheckpointer(db *sql.DB, mem Snapshotter, cfg Config, log *slog.Logger) (*Checkpointer, error) {
	store, err := NewStore(db)
	if err != nil {
		return nil, err
	}

	return &Checkpointer{
		store:            store,
		log:              log,
		mem:              mem,
		periodicInterval: cfg.PeriodicTurns,
	}, nil
}

// OnTurn should be called after each completed Execute turn. It
// triggers periodic checkpointing if configured.
func (c *Checkpointer) OnTurn() {
	if c.periodicInterval <= 0 {
		return
	}

	c.mu.Lock()
	c.turnsSince++
	shouldCheckpoint := c.turnsSince >= c.periodicInterval
	if shouldCheckpoint {
		c.turnsSince = 0
	}
	c.mu.Unlock()

	if shouldCheckpoint {
		go func() {
			if _, err := c.Create(TriggerPeriodic, ""); err != nil {
				c.log.Error("periodic checkpoint failed", "error", err)
			}
		}()
	}
}

// Create makes a new checkpoint with the given trigger and optional note.
func (c *Checkpointer) Create(trigger Trigger, note string) (*Checkpoint, error) {
	snapshot, err := c.mem.SnapshotJSON()
	if err != nil {
		return nil, fmt.Errorf("snapshot memory store: %w", err)
	}

	cp, err := c.store.Create(trigger, note, c.mem.SessionID(), snapshot, c.mem.EntryCount(), c.mem.TagIndexCount())
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	c.log.Info("checkpoint created",
		"id", cp.ID.String()[:8],
		"trigger", trigger,
		"session", cp.SessionID,
		"entries", cp.EntryCount,
		"bytes", cp.ByteSize,
	)

	return cp, nil
}

// CreateShutdown creates a checkpoint during graceful shutdown.
func (c *Checkpointer) CreateShutdown() (*Checkpoint, error) {
	return c.Create(TriggerShutdown, "graceful shutdown")
}

// CreatePreLoad creates a checkpoint before a model (re)load drops the
// KV cache and re-synthesizes the system prompt.
func (c *Checkpointer) CreatePreLoad(modelPath string) (*Checkpoint, error) {
	return c.Create(TriggerPreLoad, fmt.Sprintf("pre-load: %s", modelPath))
}

// Get retrieves a checkpoint by ID.
func (c *Checkpointer) Get(id uuid.UUID) (*Checkpoint, error) {
	return c.store.Get(id)
}

// List returns recent checkpoints.
func (c *Checkpointer) List(limit int) ([]*Checkpoint, error) {
	return c.store.List(limit)
}

// Latest returns the most recent checkpoint.
func (c *Checkpointer) Latest() (*Checkpoint, error) {
	return c.store.Latest()
}

// Delete removes a checkpoint.
func (c *Checkpointer) Delete(id uuid.UUID) error {
	return c.store.Delete(id)
}

// Prune removes old checkpoints.
func (c *Checkpointer) Prune(olderThan time.Duration, minKeep int) (int, error) {
	return c.store.Prune(olderThan, minKeep)
}

// LogStartupStatus logs the most recent persisted checkpoint, if any.
func (c *Checkpointer) LogStartupStatus() {
	latest, err := c.store.Latest()
	if err != nil {
		c.log.Warn("failed to read latest checkpoint", "error", err)
		return
	}
	if latest == nil {
		c.log.Info("starting fresh (no checkpoints)")
		return
	}
	c.log.Info("latest checkpoint",
		"id", latest.ID.String()[:8],
		"created", latest.CreatedAt.Format(time.RFC3339),
		"session", latest.SessionID,
		"entries", latest.EntryCount,
	)
}
