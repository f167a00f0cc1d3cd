package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "usage_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecord_And_Summary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	recs := []Record{
		{
			Timestamp:       now,
			SessionID:       "sess-1",
			Model:           "qwen2.5-1.5b-instruct-q4.gguf",
			Status:          "SUCCESS",
			Iterations:      2,
			ToolCalls:       1,
			GeneratedTokens: 120,
			ElapsedMS:       840,
		},
		{
			Timestamp:       now,
			SessionID:       "sess-1",
			Model:           "granite-3.1-2b-instruct.gguf",
			Status:          "TIMEOUT",
			Iterations:      5,
			ToolCalls:       4,
			GeneratedTokens: 600,
			ElapsedMS:       30120,
		},
	}

	for _, rec := range recs {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	start := now.Add(-1 * time.Minute)
	end := now.Add(1 * time.Minute)
	sum, err := s.Summary(start, end)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if sum.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", sum.TotalRecords)
	}
	if sum.TotalIterations != 7 {
		t.Errorf("TotalIterations = %d, want 7", sum.TotalIterations)
	}
	if sum.TotalToolCalls != 5 {
		t.Errorf("TotalToolCalls = %d, want 5", sum.TotalToolCalls)
	}
	if sum.TotalTokens != 720 {
		t.Errorf("TotalTokens = %d, want 720", sum.TotalTokens)
	}
}

func TestRecord_GeneratesID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := Record{Model: "qwen2.5-1.5b-instruct-q4.gguf", Status: "SUCCESS", Iterations: 1}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("Record without ID: %v", err)
	}

	// A second identical record must not collide on a generated ID.
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("second Record without ID: %v", err)
	}

	sum, err := s.Summary(time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", sum.TotalRecords)
	}
}

func TestRecord_ExplicitIDCollision(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := Record{ID: "fixed-id", Model: "m", Status: "SUCCESS"}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := s.Record(ctx, rec); err == nil {
		t.Error("expected primary-key violation on duplicate explicit ID")
	}
}

func TestSummary_WindowExcludes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := s.Record(ctx, Record{Timestamp: old, Model: "m", Status: "SUCCESS", Iterations: 3}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	sum, err := s.Summary(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRecords != 0 {
		t.Errorf("TotalRecords = %d, want 0 (record outside window)", sum.TotalRecords)
	}
}

func TestSummaryByModel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, rec := range []Record{
		{Timestamp: now, Model: "qwen.gguf", Status: "SUCCESS", GeneratedTokens: 100},
		{Timestamp: now, Model: "qwen.gguf", Status: "SUCCESS", GeneratedTokens: 50},
		{Timestamp: now, Model: "phi.gguf", Status: "ERROR", GeneratedTokens: 10},
	} {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	byModel, err := s.SummaryByModel(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("SummaryByModel: %v", err)
	}
	if len(byModel) != 2 {
		t.Fatalf("len(byModel) = %d, want 2", len(byModel))
	}
	if byModel["qwen.gguf"].TotalTokens != 150 {
		t.Errorf("qwen tokens = %d, want 150", byModel["qwen.gguf"].TotalTokens)
	}
	if byModel["phi.gguf"].TotalRecords != 1 {
		t.Errorf("phi records = %d, want 1", byModel["phi.gguf"].TotalRecords)
	}
}

func TestSummaryByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, status := range []string{"SUCCESS", "SUCCESS", "TIMEOUT"} {
		if err := s.Record(ctx, Record{Timestamp: now, Model: "m", Status: status, Iterations: 1}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	byStatus, err := s.SummaryByStatus(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("SummaryByStatus: %v", err)
	}
	if byStatus["SUCCESS"].TotalRecords != 2 {
		t.Errorf("SUCCESS records = %d, want 2", byStatus["SUCCESS"].TotalRecords)
	}
	if byStatus["TIMEOUT"].TotalRecords != 1 {
		t.Errorf("TIMEOUT records = %d, want 1", byStatus["TIMEOUT"].TotalRecords)
	}
}

func TestSummaryBySession_EmptySessionGroupsUnderBlank(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, rec := range []Record{
		{Timestamp: now, SessionID: "sess-1", Model: "m", Status: "SUCCESS"},
		{Timestamp: now, SessionID: "", Model: "m", Status: "SUCCESS"},
	} {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	bySession, err := s.SummaryBySession(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("SummaryBySession: %v", err)
	}
	if bySession["sess-1"].TotalRecords != 1 {
		t.Errorf("sess-1 records = %d, want 1", bySession["sess-1"].TotalRecords)
	}
	if bySession[""].TotalRecords != 1 {
		t.Errorf("blank-session records = %d, want 1", bySession[""].TotalRecords)
	}
}
