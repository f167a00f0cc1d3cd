package memstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Counters tracks the Memory Store's lifetime activity counts.
type Counters struct {
	TotalStored   uint64
	TotalSearches uint64
	TotalExports  uint64
}

// Store is the Memory Store: an ordered log of entries, a tag-inverted
// index, and an optional crash-tolerant JSONL append log. The zero
// value is not usable; construct with New and call Init.
type Store struct {
	mu sync.Mutex

	logger *slog.Logger

	sessionID      string
	sessionStarted time.Time
	currentTurnID  uint64
	nextMemoryID   uint64

	entries  []Entry // ordered by insertion
	byID     map[uint64]int
	tagIndex *tagIndex
	counters Counters

	storageDir string
	log        *appendLog

	isInitialized bool
}

// New returns an uninitialized Store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Init opens the store with either an explicit session id or a
// generated one (session_<epoch>_<rand>). When storageDir is
// non-empty, the append-log file <dir>/<session_id>.jsonl is created.
// Idempotent on an already-initialized store fails with
// ErrAlreadyInitialized.
func (s *Store) Init(sessionID, storageDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInitialized {
		return ErrAlreadyInitialized
	}

	if sessionID == "" {
		sessionID = fmt.Sprintf("session_%d_%s", time.Now().Unix(), shortRand())
	}

	s.sessionID = sessionID
	s.sessionStarted = time.Now()
	s.byID = make(map[uint64]int)
	s.tagIndex = newTagIndex()
	s.storageDir = storageDir

	if storageDir != "" {
		if err := os.MkdirAll(storageDir, 0o755); err != nil {
			return fmt.Errorf("memstore: create storage dir: %w", err)
		}
		path := filepath.Join(storageDir, sessionID+".jsonl")
		log, err := openAppendLog(path)
		if err != nil {
			return err
		}
		s.log = log
	}

	s.isInitialized = true
	return nil
}

// shortRand returns a short, non-cryptographic correlation token
// derived from a UUIDv7's trailing bytes.
func shortRand() string {
	id, err := uuid.NewV7()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	s := id.String()
	return s[len(s)-8:]
}

// InitFromLog is like Init, but reconstructs entries by replaying an
// existing append-log file at <storageDir>/<sessionID>.jsonl before
// resuming writes to it. Init recreates that file, so the replayed
// entries are first written back to it as insert records; later
// mutations are appended after them. Used to satisfy the log replay round-trip
// property: init -> add* -> cleanup, followed by a fresh init that
// replays the log.
func (s *Store) InitFromLog(sessionID, storageDir string) error {
	s.mu.Lock()
	if s.isInitialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.mu.Unlock()

	path := filepath.Join(storageDir, sessionID+".jsonl")
	entries, err := replayAppendLog(path, func(format string, args ...any) {
		s.logger.Warn(fmt.Sprintf(format, args...))
	})
	if err != nil {
		return err
	}

	if err := s.Init(sessionID, storageDir); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reindexLocked(entries)
	if s.log != nil {
		for _, e := range s.entries {
			if err := s.log.insert(e); err != nil {
				s.logger.Warn("memstore: append log insert failed", "error", err)
			}
		}
	}
	return nil
}

// reindexLocked replaces entries/tagIndex/counters/next ids from a
// reconstructed entry slice. Caller must hold mu.
func (s *Store) reindexLocked(entries []Entry) {
	s.entries = entries
	s.byID = make(map[uint64]int, len(entries))
	var maxMemID, maxTurnID uint64
	for i, e := range entries {
		s.byID[e.MemoryID] = i
		if e.MemoryID > maxMemID {
			maxMemID = e.MemoryID
		}
		if e.TurnID > maxTurnID {
			maxTurnID = e.TurnID
		}
	}
	s.tagIndex = rebuildTagIndex(entries)
	s.nextMemoryID = maxMemID + 1
	s.currentTurnID = maxTurnID
	s.counters.TotalStored = uint64(len(entries))
}

func (s *Store) requireInitLocked() error {
	if !s.isInitialized {
		return ErrNotInitialized
	}
	return nil
}

// Add stores a new entry. Clamps importance into [0,1]; truncates tags
// to 16 (each to 63 bytes); truncates text to 8192 bytes; assigns the
// next monotonic memory_id and turn_id; indexes tags; appends one
// JSONL insert record if a log is open.
func (s *Store) Add(text string, tags []string, importance float64, isUser bool) (uint64, error) {
	return s.addInternal(text, tags, importance, isUser, nil, 0, time.Time{})
}

// AddWithToolsCalled is Add plus the set of tool names invoked while
// producing this turn, recorded for prompt-building and audit.
func (s *Store) AddWithToolsCalled(text string, tags []string, importance float64, isUser bool, toolsCalled []string) (uint64, error) {
	return s.addInternal(text, tags, importance, isUser, toolsCalled, 0, time.Time{})
}

// addWithExplicitID is the internal-add primitive Import uses so a
// round trip preserves identifiers exactly.
func (s *Store) addWithExplicitID(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}

	e.Text = normalizeText(e.Text)
	e.Tags = normalizeTags(e.Tags)
	e.Importance = clampImportance(e.Importance)

	s.byID[e.MemoryID] = len(s.entries)
	s.entries = append(s.entries, e)
	for _, t := range e.Tags {
		s.tagIndex.add(t, e.MemoryID)
	}
	if e.MemoryID >= s.nextMemoryID {
		s.nextMemoryID = e.MemoryID + 1
	}
	if e.TurnID > s.currentTurnID {
		s.currentTurnID = e.TurnID
	}
	s.counters.TotalStored++

	if s.log != nil {
		if err := s.log.insert(e); err != nil {
			s.logger.Warn("memstore: append log insert failed", "error", err)
		}
	}
	return nil
}

func (s *Store) addInternal(text string, tags []string, importance float64, isUser bool, toolsCalled []string, explicitID uint64, explicitTS time.Time) (uint64, error) {
	if text == "" {
		return 0, fmt.Errorf("%w: text is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return 0, err
	}

	id := s.nextMemoryID
	s.nextMemoryID++
	s.currentTurnID++

	ts := time.Now()
	if !explicitTS.IsZero() {
		ts = explicitTS
	}

	e := Entry{
		MemoryID:      id,
		TurnID:        s.currentTurnID,
		Timestamp:     ts,
		Text:          normalizeText(text),
		Tags:          normalizeTags(tags),
		Importance:    clampImportance(importance),
		IsUserMessage: isUser,
		ToolsCalled:   toolsCalled,
	}

	s.byID[id] = len(s.entries)
	s.entries = append(s.entries, e)
	for _, t := range e.Tags {
		s.tagIndex.add(t, id)
	}
	s.counters.TotalStored++

	if s.log != nil {
		if err := s.log.insert(e); err != nil {
			s.logger.Warn("memstore: append log insert failed", "error", err)
		}
	}

	return id, nil
}

// AddCorrection is the "correction" convenience entry-point: prefixes
// text with "CORRECTION: ", tags {correction, high_priority},
// importance 0.99.
func (s *Store) AddCorrection(text, contextOptional string) (uint64, error) {
	full := correctionPrefix + text
	if contextOptional != "" {
		full += " (" + contextOptional + ")"
	}
	return s.Add(full, correctionTags, correctionImportance, false)
}

// AddPattern is the "pattern" convenience entry-point: prefixes text
// with "SUCCESS PATTERN: ", tags {pattern, success}, importance 0.90.
func (s *Store) AddPattern(text string) (uint64, error) {
	return s.Add(patternPrefix+text, patternTags, patternImportance, false)
}

// UpdateTags replaces memoryID's tag set in-memory and, if persisted,
// emits an {op:"update", id, tags} record.
func (s *Store) UpdateTags(memoryID uint64, newTags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}
	idx, ok := s.byID[memoryID]
	if !ok {
		return ErrNotFound
	}

	old := s.entries[idx].Tags
	s.tagIndex.removeFromAll(old, memoryID)

	tags := normalizeTags(newTags)
	s.entries[idx].Tags = tags
	for _, t := range tags {
		s.tagIndex.add(t, memoryID)
	}

	if s.log != nil {
		if err := s.log.updateTags(memoryID, tags); err != nil {
			s.logger.Warn("memstore: append log update_tags failed", "error", err)
		}
	}
	return nil
}

// UpdateText replaces memoryID's text in-memory and, if persisted,
// emits an {op:"update_text", id, text} record.
func (s *Store) UpdateText(memoryID uint64, newText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}
	idx, ok := s.byID[memoryID]
	if !ok {
		return ErrNotFound
	}

	text := normalizeText(newText)
	s.entries[idx].Text = text

	if s.log != nil {
		if err := s.log.updateText(memoryID, text); err != nil {
			s.logger.Warn("memstore: append log update_text failed", "error", err)
		}
	}
	return nil
}

// GetByID returns the entry for memoryID, or ErrNotFound.
func (s *Store) GetByID(memoryID uint64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[memoryID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return s.entries[idx], nil
}

// DeleteByIDs removes the named ids from the ordered list and every
// tag-index bucket. Returns the number actually deleted.
func (s *Store) DeleteByIDs(ids []uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.pruneLocked(func(e Entry) bool { return want[e.MemoryID] })
}

// Forget removes entries older than olderThanSeconds (wall-clock age)
// OR with importance below importanceBelow; a zero value for either
// parameter means "ignore that condition." Returns the pruned count.
func (s *Store) Forget(olderThanSeconds int64, importanceBelow float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	return s.pruneLocked(func(e Entry) bool {
		ageMatch := olderThanSeconds > 0 && now.Sub(e.Timestamp) > time.Duration(olderThanSeconds)*time.Second
		impMatch := importanceBelow > 0 && e.Importance < importanceBelow
		return ageMatch || impMatch
	})
}

// pruneLocked removes every entry for which match returns true, caller
// must hold mu.
func (s *Store) pruneLocked(match func(Entry) bool) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if match(e) {
			s.tagIndex.removeFromAll(e.Tags, e.MemoryID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	s.byID = make(map[uint64]int, len(s.entries))
	for i, e := range s.entries {
		s.byID[e.MemoryID] = i
	}
	return removed
}

// Cleanup flushes and closes the append log. The in-memory entries,
// id map and tag index are not released: read methods keep answering
// from them after Cleanup.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		err := s.log.close()
		s.log = nil
		return err
	}
	return nil
}

// SessionID returns the store's session identifier.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// EntryCount returns the number of live entries.
func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TagIndexCount returns the number of distinct indexed tags.
func (s *Store) TagIndexCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tagIndex.tagCount()
}

// GetCounters returns a copy of the store's lifetime activity counters.
func (s *Store) GetCounters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// RecentCorrections returns the text of up to limit most-recent
// "correction"-tagged entries, most recent first. Implements
// registry.MemoryPromptEntries.
func (s *Store) RecentCorrections(limit int) []string {
	return s.recentTagged("correction", limit)
}

// RecentPatterns returns the text of up to limit most-recent
// "pattern"-tagged entries, most recent first. Implements
// registry.MemoryPromptEntries.
func (s *Store) RecentPatterns(limit int) []string {
	return s.recentTagged("pattern", limit)
}

func (s *Store) recentTagged(tag string, limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.tagIndex.ids(tag)
	var out []string
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		idx, ok := s.byID[ids[i]]
		if !ok {
			continue
		}
		out = append(out, s.entries[idx].Text)
	}
	return out
}
