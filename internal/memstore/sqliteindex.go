package memstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteIndex is an optional, persistent cross-session search
// accelerator over archived memory entries. The in-memory Store
// already answers search for the live session; SQLiteIndex exists so
// a search can also reach entries from sessions already archived to
// disk, without loading every archived JSONL file into memory.
//
// Uses FTS5 full-text search when available, falling back to a LIKE
// scan otherwise — the same fallback the fact store elsewhere in this
// codebase's lineage uses, since not every sqlite3 build includes
// FTS5.
type SQLiteIndex struct {
	db       *sql.DB
	logger   *slog.Logger
	ftsReady bool
}

// OpenSQLiteIndex opens (creating if absent) the sqlite database at
// path used to back cross-session memory search.
func OpenSQLiteIndex(path string, logger *slog.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("memstore: open sqlite index: %w", err)
	}

	idx := &SQLiteIndex{db: db, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	idx.tryEnableFTS()
	return idx, nil
}

func (idx *SQLiteIndex) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_entries (
			session_id TEXT NOT NULL,
			memory_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			tags TEXT NOT NULL,
			importance REAL NOT NULL,
			ts INTEGER NOT NULL,
			PRIMARY KEY (session_id, memory_id)
		)
	`)
	return err
}

// tryEnableFTS creates the FTS5 virtual table for full-text search. If
// FTS5 is not available, search falls back to a LIKE scan on
// memory_entries.
func (idx *SQLiteIndex) tryEnableFTS() {
	_, err := idx.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_entries_fts USING fts5(
			session_id UNINDEXED, memory_id UNINDEXED, text
		)
	`)
	if err != nil {
		idx.logger.Warn("memstore: FTS5 not available, using LIKE fallback for cross-session search", "error", err)
		return
	}
	idx.ftsReady = true
}

// Index records one archived entry for later cross-session search.
func (idx *SQLiteIndex) Index(sessionID string, e Entry) error {
	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO memory_entries (session_id, memory_id, text, tags, importance, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, e.MemoryID, e.Text, strings.Join(e.Tags, ","), e.Importance, e.Timestamp.Unix(),
	)
	if err != nil {
		return err
	}
	if idx.ftsReady {
		_, err = idx.db.Exec(
			`INSERT INTO memory_entries_fts (session_id, memory_id, text) VALUES (?, ?, ?)`,
			sessionID, e.MemoryID, e.Text,
		)
	}
	return err
}

// CrossSessionHit is one result from a cross-session search.
type CrossSessionHit struct {
	SessionID string
	MemoryID  uint64
	Text      string
}

// Search scans archived entries across all sessions for query,
// preferring FTS5 ranking when available.
func (idx *SQLiteIndex) Search(query string, limit int) ([]CrossSessionHit, error) {
	if idx.ftsReady {
		hits, err := idx.searchFTS(query, limit)
		if err == nil {
			return hits, nil
		}
		idx.logger.Warn("memstore: FTS5 search failed, falling back to LIKE", "error", err)
	}
	return idx.searchLIKE(query, limit)
}

func (idx *SQLiteIndex) searchFTS(query string, limit int) ([]CrossSessionHit, error) {
	rows, err := idx.db.Query(
		`SELECT session_id, memory_id, text FROM memory_entries_fts WHERE memory_entries_fts MATCH ? ORDER BY rank LIMIT ?`,
		sanitizeFTSQuery(query), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHits(rows)
}

func (idx *SQLiteIndex) searchLIKE(query string, limit int) ([]CrossSessionHit, error) {
	rows, err := idx.db.Query(
		`SELECT session_id, memory_id, text FROM memory_entries WHERE text LIKE ? ORDER BY ts DESC LIMIT ?`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]CrossSessionHit, error) {
	var out []CrossSessionHit
	for rows.Next() {
		var h CrossSessionHit
		if err := rows.Scan(&h.SessionID, &h.MemoryID, &h.Text); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// sanitizeFTSQuery wraps each search term in double quotes so that
// user input cannot be interpreted as FTS5 query-syntax operators.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// Close releases the underlying database handle.
func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}
