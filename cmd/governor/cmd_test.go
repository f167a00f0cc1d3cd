package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethervoxai/governor/internal/config"
	"github.com/ethervoxai/governor/internal/memstore"
)

func TestSplitTurnParsesSessionPrefix(t *testing.T) {
	cases := []struct {
		line, wantSession, wantQuery string
	}{
		{"alice: what time is it", "alice", "what time is it"},
		{"bare query with no prefix", "default", "bare query with no prefix"},
		{"has a colon: but with spaces before it", "default", "has a colon: but with spaces before it"},
		{"x:y", "x", "y"},
		{":leading colon", "default", ":leading colon"},
	}
	for _, c := range cases {
		gotSession, gotQuery := splitTurn(c.line)
		if gotSession != c.wantSession || gotQuery != c.wantQuery {
			t.Errorf("splitTurn(%q) = (%q, %q), want (%q, %q)",
				c.line, gotSession, gotQuery, c.wantSession, c.wantQuery)
		}
	}
}

func TestBuildRootCmdRegistersAllSubcommands(t *testing.T) {
	root := buildRootCmd()
	want := map[string]bool{"serve": false, "ask": false, "optimize-prompts": false, "replay-log": false, "export-memory": false}
	for _, c := range root.Commands() {
		name := strings.Fields(c.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestLoadConfigFallsBackToDefault(t *testing.T) {
	orig := configPath
	configPath = "/nonexistent/path/to/config.yaml"
	defer func() { configPath = orig }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected a default config, got nil")
	}
}

func TestNewLoggerHonorsConfiguredLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "debug"
	logger := newLogger(cfg)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	if !logger.Enabled(nil, slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
}

func TestReplayLogCommandReportsReconstructedCounts(t *testing.T) {
	dir := t.TempDir()

	seed := memstore.New(nil)
	if err := seed.Init("replay-session", dir); err != nil {
		t.Fatalf("seed Init: %v", err)
	}
	if _, err := seed.Add("likes tea", []string{"preference"}, 0.6, true); err != nil {
		t.Fatalf("seed Add: %v", err)
	}
	if _, err := seed.Add("lives in Berlin", []string{"location"}, 0.7, true); err != nil {
		t.Fatalf("seed Add: %v", err)
	}
	seed.Cleanup()

	cmd := buildReplayLogCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{dir + "/replay-session.jsonl"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "session=replay-session") {
		t.Errorf("expected session name in output, got %q", got)
	}
	if !strings.Contains(got, "entries=2") {
		t.Errorf("expected entries=2 in output, got %q", got)
	}
}

func TestExportMemoryCommandRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	memoryDir := filepath.Join(dataDir, "memory")
	if err := os.MkdirAll(memoryDir, 0o755); err != nil {
		t.Fatal(err)
	}

	seed := memstore.New(nil)
	if err := seed.Init("export-session", memoryDir); err != nil {
		t.Fatalf("seed Init: %v", err)
	}
	if _, err := seed.Add("likes tea", []string{"preference"}, 0.6, true); err != nil {
		t.Fatalf("seed Add: %v", err)
	}
	seed.Cleanup()

	// Point loadConfig at a config file naming our temp data dir so
	// the command both finds the session log and resolves the
	// transcripts: prefix against it.
	cfgFile := filepath.Join(dataDir, "config.yaml")
	if err := os.WriteFile(cfgFile, []byte("data_dir: "+dataDir+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "transcripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	orig := configPath
	configPath = cfgFile
	defer func() { configPath = orig }()

	cmd := buildExportMemoryCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"export-session", "transcripts:export.json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "entries=1") {
		t.Errorf("expected entries=1 in output, got %q", out.String())
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "transcripts", "export.json"))
	if err != nil {
		t.Fatalf("read exported file: %v", err)
	}
	var doc struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("exported file is not valid JSON: %v", err)
	}
	if doc.SessionID != "export-session" {
		t.Errorf("session_id = %q, want %q", doc.SessionID, "export-session")
	}
}
