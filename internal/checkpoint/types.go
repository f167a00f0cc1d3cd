// Package checkpoint provides point-in-time snapshots of the
// conversation memory store. The append log already gives the store
// crash recovery for the current session; checkpoints add durable,
// queryable restore points that survive log archival — every N turns,
// on graceful shutdown, or on demand.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trigger describes what caused a checkpoint to be created.
type Trigger string

const (
	TriggerManual   Trigger = "manual"   // Explicit CLI or API call
	TriggerPeriodic Trigger = "periodic" // Every N turns
	TriggerShutdown Trigger = "shutdown" // Graceful shutdown
	TriggerPreLoad  Trigger = "pre-load" // Before a model (re)load resets KV state
)

// Checkpoint represents a point-in-time snapshot of one session's
// memory store.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Trigger   Trigger   `json:"trigger"`
	Note      string    `json:"note,omitempty"` // Optional human description
	SessionID string    `json:"session_id"`

	// Snapshot is the memory store's JSON export document. Populated
	// by Get and Latest; List leaves it nil to keep responses small.
	Snapshot []byte `json:"snapshot,omitempty"`

	// Metadata
	ByteSize   int64 `json:"byte_size"` // Compressed size
	EntryCount int   `json:"entry_count"`
	TagCount   int   `json:"tag_count"`
}

// Summary returns a human-readable one-line summary of the checkpoint.
func (c *Checkpoint) Summary() string {
	return fmt.Sprintf("%s | %s | %s | %s | %d entries, %d tags",
		c.ID.String()[:8],
		c.CreatedAt.Format("2006-01-02 15:04"),
		c.Trigger,
		c.SessionID,
		c.EntryCount,
		c.TagCount,
	)
}
