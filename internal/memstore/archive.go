package memstore

import (
	"os"
	"path/filepath"
	"strings"
)

// ArchiveSessions moves closed-session JSONL files in the storage
// directory into an archive/ subdirectory, skipping the current
// session's own log. Returns the number of files archived.
func (s *Store) ArchiveSessions() (int, error) {
	s.mu.Lock()
	dir := s.storageDir
	current := s.sessionID + ".jsonl"
	s.mu.Unlock()

	if dir == "" {
		return 0, nil
	}

	archiveDir := filepath.Join(dir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") || de.Name() == current {
			continue
		}
		src := filepath.Join(dir, de.Name())
		dst := filepath.Join(archiveDir, de.Name())
		if err := os.Rename(src, dst); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}
