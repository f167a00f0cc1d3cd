// Package usage provides persistent accounting for Governor
// executions. One record is written per Execute call, indexed by
// timestamp, session, and model for aggregation queries — how many
// iterations a session burns, how many tokens each model generates,
// how often executions time out.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record represents a single Execute call's accounting.
type Record struct {
	ID              string
	Timestamp       time.Time
	SessionID       string
	Model           string
	Status          string // "SUCCESS", "TIMEOUT", "ERROR"
	Iterations      int
	ToolCalls       int
	GeneratedTokens int
	ElapsedMS       int64
}

// Summary holds aggregated execution totals.
type Summary struct {
	TotalRecords    int
	TotalIterations int64
	TotalToolCalls  int64
	TotalTokens     int64
}

// Store is an append-only SQLite store for execution records. All
// public methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates a usage store at the given database path. The schema
// is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS execution_records (
		id               TEXT PRIMARY KEY,
		timestamp        TEXT NOT NULL,
		session_id       TEXT,
		model            TEXT NOT NULL,
		status           TEXT NOT NULL,
		iterations       INTEGER NOT NULL,
		tool_calls       INTEGER NOT NULL,
		generated_tokens INTEGER NOT NULL,
		elapsed_ms       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exec_timestamp ON execution_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_exec_session ON execution_records(session_id);
	CREATE INDEX IF NOT EXISTS idx_exec_model ON execution_records(model);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists an execution record. If rec.ID is empty, a UUIDv7 is
// generated. The context is used for cancellation only.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_records
			(id, timestamp, session_id, model, status,
			 iterations, tool_calls, generated_tokens, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.SessionID,
		rec.Model,
		rec.Status,
		rec.Iterations,
		rec.ToolCalls,
		rec.GeneratedTokens,
		rec.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary returns aggregated totals for records within [start, end).
func (s *Store) Summary(start, end time.Time) (*Summary, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(iterations), 0), COALESCE(SUM(tool_calls), 0), COALESCE(SUM(generated_tokens), 0)
		 FROM execution_records
		 WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)

	var sum Summary
	if err := row.Scan(&sum.TotalRecords, &sum.TotalIterations, &sum.TotalToolCalls, &sum.TotalTokens); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// SummaryByModel returns per-model aggregated totals for records within [start, end).
func (s *Store) SummaryByModel(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("model", start, end)
}

// SummaryByStatus returns per-status aggregated totals for records within [start, end).
func (s *Store) SummaryByStatus(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("status", start, end)
}

// SummaryBySession returns per-session aggregated totals for records
// within [start, end). Records with empty session_id are grouped under
// the key "".
func (s *Store) SummaryBySession(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("session_id", start, end)
}

func (s *Store) summaryGroupedBy(column string, start, end time.Time) (map[string]*Summary, error) {
	// column is always a compile-time constant from our own methods,
	// never user input, so embedding it directly is safe.
	query := fmt.Sprintf(
		`SELECT COALESCE(%s, ''), COUNT(*), COALESCE(SUM(iterations), 0), COALESCE(SUM(tool_calls), 0), COALESCE(SUM(generated_tokens), 0)
		 FROM execution_records
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY %s
		 ORDER BY SUM(generated_tokens) DESC`,
		column, column,
	)

	rows, err := s.db.Query(query,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage by %s: %w", column, err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var key string
		var sum Summary
		if err := rows.Scan(&key, &sum.TotalRecords, &sum.TotalIterations, &sum.TotalToolCalls, &sum.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan usage by %s: %w", column, err)
		}
		result[key] = &sum
	}
	return result, rows.Err()
}
