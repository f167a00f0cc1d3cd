// Package memstore implements the Memory Store: an ordered log of
// tagged, timestamped, importance-scored text entries with a
// tag-inverted index, backed by a crash-tolerant append-only JSONL
// log, supporting search, summarize, export, import, and forget.
package memstore

import "time"

const (
	// MaxTextBytes bounds a single entry's text.
	MaxTextBytes = 8192
	// MaxTags bounds the number of tags on a single entry.
	MaxTags = 16
	// MaxTagBytes bounds a single tag's length.
	MaxTagBytes = 63
)

// Entry is the Memory Entry record of the data model.
type Entry struct {
	MemoryID      uint64    `json:"memory_id"`
	TurnID        uint64    `json:"turn_id"`
	Timestamp     time.Time `json:"timestamp"`
	Text          string    `json:"text"`
	Tags          []string  `json:"tags"`
	Importance    float64   `json:"importance"`
	IsUserMessage bool      `json:"is_user_message"`
	ToolsCalled   []string  `json:"tools_called,omitempty"`
}

// Correction and pattern convenience prefixes and tags.
const (
	correctionPrefix = "CORRECTION: "
	patternPrefix    = "SUCCESS PATTERN: "

	correctionImportance = 0.99
	patternImportance    = 0.90
)

var (
	correctionTags = []string{"correction", "high_priority"}
	patternTags    = []string{"pattern", "success"}
)

// clampImportance saturates v into [0,1].
func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeTags truncates tags to MaxTags entries, each to MaxTagBytes.
func normalizeTags(tags []string) []string {
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		if len(t) > MaxTagBytes {
			t = t[:MaxTagBytes]
		}
		out[i] = t
	}
	return out
}

// normalizeText truncates text to MaxTextBytes.
func normalizeText(text string) string {
	if len(text) > MaxTextBytes {
		return text[:MaxTextBytes]
	}
	return text
}
