package checkpoint

import (
	"bytes"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ethervoxai/governor/internal/memstore"
)

// fakeSnapshotter is a scripted Snapshotter for tests that don't need
// a real memory store.
type fakeSnapshotter struct {
	session  string
	entries  int
	tags     int
	snapshot []byte
}

func (f *fakeSnapshotter) SessionID() string             { return f.session }
func (f *fakeSnapshotter) EntryCount() int               { return f.entries }
func (f *fakeSnapshotter) TagIndexCount() int            { return f.tags }
func (f *fakeSnapshotter) SnapshotJSON() ([]byte, error) { return f.snapshot, nil }

// memstore.Store must satisfy Snapshotter without an adapter.
var _ Snapshotter = (*memstore.Store)(nil)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// One connection, or each pooled connection would see its own
	// private :memory: database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreate_GetRoundTrip(t *testing.T) {
	snap := []byte(`{"session_id":"sess-1","entries":[{"id":1,"text":"User's name is Tim"}]}`)
	mem := &fakeSnapshotter{session: "sess-1", entries: 1, tags: 2, snapshot: snap}

	c, err := NewCheckpointer(testDB(t), mem, Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	created, err := c.Create(TriggerManual, "before experiment")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Trigger != TriggerManual || created.Note != "before experiment" {
		t.Errorf("created = %+v", created)
	}
	if created.EntryCount != 1 || created.TagCount != 2 {
		t.Errorf("counts = %d entries, %d tags; want 1, 2", created.EntryCount, created.TagCount)
	}
	if created.ByteSize <= 0 {
		t.Errorf("ByteSize = %d, want > 0", created.ByteSize)
	}

	got, err := c.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Snapshot, snap) {
		t.Errorf("Snapshot round trip:\n got %s\nwant %s", got.Snapshot, snap)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", got.SessionID, "sess-1")
	}
}

func TestOnTurn_PeriodicTrigger(t *testing.T) {
	mem := &fakeSnapshotter{session: "sess-1", snapshot: []byte(`{}`)}
	c, err := NewCheckpointer(testDB(t), mem, Config{PeriodicTurns: 3}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	c.OnTurn()
	c.OnTurn()
	if cps, _ := c.List(10); len(cps) != 0 {
		t.Fatal("checkpoint created after 2 turns, want none before the third")
	}

	c.OnTurn() // third turn crosses the interval; fires asynchronously

	deadline := time.Now().Add(2 * time.Second)
	for {
		cps, err := c.List(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(cps) == 1 {
			if cps[0].Trigger != TriggerPeriodic {
				t.Errorf("Trigger = %q, want %q", cps[0].Trigger, TriggerPeriodic)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for periodic checkpoint")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOnTurn_Disabled(t *testing.T) {
	mem := &fakeSnapshotter{snapshot: []byte(`{}`)}
	c, err := NewCheckpointer(testDB(t), mem, Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for range 10 {
		c.OnTurn()
	}
	if cps, _ := c.List(10); len(cps) != 0 {
		t.Errorf("PeriodicTurns=0 must disable periodic checkpoints, got %d", len(cps))
	}
}

func TestLatest_Empty(t *testing.T) {
	c, err := NewCheckpointer(testDB(t), &fakeSnapshotter{}, Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	latest, err := c.Latest()
	if err != nil {
		t.Fatalf("Latest on empty store: %v", err)
	}
	if latest != nil {
		t.Errorf("Latest = %+v, want nil", latest)
	}
}

func TestPrune_KeepsMinimum(t *testing.T) {
	mem := &fakeSnapshotter{session: "sess-1", snapshot: []byte(`{}`)}
	c, err := NewCheckpointer(testDB(t), mem, Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for range 5 {
		if _, err := c.Create(TriggerManual, ""); err != nil {
			t.Fatal(err)
		}
	}

	// Everything is "older than" a negative cutoff in the future, but
	// minKeep must hold the floor.
	deleted, err := c.Prune(-time.Hour, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	cps, _ := c.List(10)
	if len(cps) != 2 {
		t.Errorf("remaining = %d, want 2", len(cps))
	}
}

func TestCreate_FromRealMemoryStore(t *testing.T) {
	mem := memstore.New(testLogger())
	if err := mem.Init("sess-cp", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Add("User's name is Tim", []string{"personal"}, 0.95, true); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.AddPattern("calculator handled the tip math"); err != nil {
		t.Fatal(err)
	}

	c, err := NewCheckpointer(testDB(t), mem, Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	cp, err := c.CreateShutdown()
	if err != nil {
		t.Fatalf("CreateShutdown: %v", err)
	}
	if cp.SessionID != "sess-cp" {
		t.Errorf("SessionID = %q, want %q", cp.SessionID, "sess-cp")
	}
	if cp.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", cp.EntryCount)
	}

	got, err := c.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(got.Snapshot, []byte("Tim")) {
		t.Error("snapshot should contain the stored entry text")
	}
}

func TestDelete_NotFound(t *testing.T) {
	mem := &fakeSnapshotter{snapshot: []byte(`{}`)}
	c, err := NewCheckpointer(testDB(t), mem, Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	cp, err := c.Create(TriggerManual, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(cp.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(cp.ID); err == nil {
		t.Error("second Delete should report not found")
	}
}

func TestSummary(t *testing.T) {
	mem := &fakeSnapshotter{session: "sess-9", entries: 4, tags: 3, snapshot: []byte(`{}`)}
	c, err := NewCheckpointer(testDB(t), mem, Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	cp, err := c.Create(TriggerManual, "")
	if err != nil {
		t.Fatal(err)
	}
	s := cp.Summary()
	for _, want := range []string{"manual", "sess-9", "4 entries", "3 tags"} {
		if !bytes.Contains([]byte(s), []byte(want)) {
			t.Errorf("Summary() = %q, missing %q", s, want)
		}
	}
}
