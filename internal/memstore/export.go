package memstore

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// exportDoc is the JSON export wire format.
type exportDoc struct {
	SessionID          string        `json:"session_id"`
	SessionStartedEpoch int64        `json:"session_started_epoch"`
	Counters           exportCounters `json:"counters"`
	Entries            []exportEntry  `json:"entries"`
}

type exportCounters struct {
	Stored   uint64 `json:"stored"`
	Searches uint64 `json:"searches"`
	Exports  uint64 `json:"exports"`
}

type exportEntry struct {
	ID            uint64   `json:"id"`
	TurnID        uint64   `json:"turn_id"`
	Timestamp     int64    `json:"timestamp"`
	Text          string   `json:"text"`
	Tags          []string `json:"tags"`
	Importance    float64  `json:"importance"`
	IsUserMessage bool     `json:"is_user_message"`
	ToolsCalled   []string `json:"tools_called,omitempty"`
}

// Export writes the store to path in "json" or "markdown" form and
// returns the number of bytes written. Increments total_exports.
func (s *Store) Export(path, format string) (int, error) {
	s.mu.Lock()
	var data []byte
	var err error
	switch format {
	case "json":
		data, err = s.marshalJSONLocked()
	case "markdown":
		data = s.marshalMarkdownLocked()
	default:
		err = fmt.Errorf("%w: unknown export format %q", ErrInvalidArgument, format)
	}
	if err == nil {
		s.counters.TotalExports++
	}
	s.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return len(data), nil
}

// SnapshotJSON returns the same JSON document Export("json") writes,
// for callers that persist point-in-time snapshots elsewhere (the
// checkpointer). Does not increment total_exports — no file leaves
// the store's own storage directory.
func (s *Store) SnapshotJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return nil, err
	}
	return s.marshalJSONLocked()
}

func (s *Store) marshalJSONLocked() ([]byte, error) {
	doc := exportDoc{
		SessionID:           s.sessionID,
		SessionStartedEpoch: s.sessionStarted.Unix(),
		Counters: exportCounters{
			Stored:   s.counters.TotalStored,
			Searches: s.counters.TotalSearches,
			Exports:  s.counters.TotalExports,
		},
	}
	for _, e := range s.entries {
		doc.Entries = append(doc.Entries, exportEntry{
			ID:            e.MemoryID,
			TurnID:        e.TurnID,
			Timestamp:     e.Timestamp.Unix(),
			Text:          e.Text,
			Tags:          e.Tags,
			Importance:    e.Importance,
			IsUserMessage: e.IsUserMessage,
			ToolsCalled:   e.ToolsCalled,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (s *Store) marshalMarkdownLocked() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session %s\n\n", s.sessionID)
	fmt.Fprintf(&sb, "Started: %s\n\n", s.sessionStarted.Format(time.RFC3339))
	for _, e := range s.entries {
		who := "assistant"
		if e.IsUserMessage {
			who = "user"
		}
		fmt.Fprintf(&sb, "## Turn %d (%s, importance %.2f)\n\n", e.TurnID, who, e.Importance)
		sb.WriteString(e.Text)
		sb.WriteString("\n\n")
		if len(e.Tags) > 0 {
			fmt.Fprintf(&sb, "_tags: %s_\n\n", strings.Join(e.Tags, ", "))
		}
	}
	return []byte(sb.String())
}

// Import parses a JSON document produced by Export and loads its
// entries using the internal-add primitive that accepts explicit
// memory_id/turn_id/timestamp, so the round trip preserves
// identifiers. After import, counters are advanced so subsequent
// auto-generated ids do not collide with imported ones. Returns the
// number of turns loaded.
func (s *Store) Import(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("memstore: parse export document: %w", err)
	}

	loaded := 0
	for _, ee := range doc.Entries {
		e := Entry{
			MemoryID:      ee.ID,
			TurnID:        ee.TurnID,
			Timestamp:     unixToTime(ee.Timestamp),
			Text:          ee.Text,
			Tags:          ee.Tags,
			Importance:    ee.Importance,
			IsUserMessage: ee.IsUserMessage,
			ToolsCalled:   ee.ToolsCalled,
		}
		if err := s.addWithExplicitID(e); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}
