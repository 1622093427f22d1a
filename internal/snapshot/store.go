package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

// SchemaVersion identifies the on-disk snapshot format this build reads and
// writes. Files carrying any other version are rejected with a migration
// error rather than silently misread.
const SchemaVersion = "1"

type snapshotFile struct {
	Version   string               `json:"version"`
	RunID     string               `json:"run_id"`
	Revision  uint64               `json:"revision"`
	SavedAt   time.Time            `json:"saved_at"`
	Resources map[string]string    `json:"resources"`
	Applied   map[string]time.Time `json:"applied"`
}

// Load reads an archived snapshot from disk. Seeding a run from an archived
// snapshot is what lets re-invocation skip already-satisfied steps without
// re-deriving state from the live filesystem.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}

	if file.Version != SchemaVersion {
		return nil, stratumerrors.NewSnapshotVersionError(path, file.Version, SchemaVersion)
	}

	snap := New()
	snap.revision = file.Revision
	if file.RunID != "" {
		snap.runID = file.RunID
	}
	for k, v := range file.Resources {
		snap.resources[k] = v
	}
	for k, v := range file.Applied {
		snap.applied[k] = v
	}
	return snap, nil
}

// Save writes the snapshot to disk atomically (write to a temporary file,
// then rename into place).
func (s *Snapshot) Save(path string) error {
	s.mu.RLock()
	file := snapshotFile{
		Version:   SchemaVersion,
		RunID:     s.runID,
		Revision:  s.revision,
		SavedAt:   time.Now().UTC(),
		Resources: make(map[string]string, len(s.resources)),
		Applied:   make(map[string]time.Time, len(s.applied)),
	}
	for k, v := range s.resources {
		file.Resources[k] = v
	}
	for k, v := range s.applied {
		file.Applied[k] = v
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary snapshot: %w", err)
	}

	return nil
}
