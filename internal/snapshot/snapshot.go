// Package snapshot holds the authoritative record of provisioned resource
// state. The snapshot is created empty at the start of a run (or seeded from
// an archived file), mutated only by successful step application, and read by
// postcondition predicates and the verifier.
package snapshot

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot maps resource keys (paths, env-var names, package@version names)
// to observed values. All mutations go through Merge, which serializes
// writers and bumps the revision counter exactly once per merge.
type Snapshot struct {
	mu        sync.RWMutex
	runID     string
	revision  uint64
	resources map[string]string
	applied   map[string]time.Time
}

// New creates an empty snapshot with a fresh run identifier.
func New() *Snapshot {
	return &Snapshot{
		runID:     uuid.NewString(),
		resources: make(map[string]string),
		applied:   make(map[string]time.Time),
	}
}

// RunID returns the identifier of the run that owns this snapshot.
func (s *Snapshot) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// Revision returns the monotonically increasing revision counter.
func (s *Snapshot) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Get returns the observed value for a resource key.
func (s *Snapshot) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.resources[key]
	return value, ok
}

// Resources returns a copy of the resource map.
func (s *Snapshot) Resources() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.resources))
	for k, v := range s.resources {
		out[k] = v
	}
	return out
}

// AppliedAt reports when stepID last applied successfully, if ever. The
// verifier uses this to tell drift apart from work that was never attempted.
func (s *Snapshot) AppliedAt(stepID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.applied[stepID]
	return at, ok
}

// Merge records a successful step application: the step's resource changes
// are folded into the snapshot and the revision counter is incremented once.
// Merge is the single writer path; concurrent step workers serialize here.
func (s *Snapshot) Merge(stepID string, changes map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range changes {
		s.resources[key] = value
	}
	s.applied[stepID] = time.Now().UTC()
	s.revision++
}

// Preview returns a detached copy of the snapshot with changes overlaid.
// The copy shares no state with the original and carries the same revision,
// so postconditions can be re-checked before the real merge commits.
func (s *Snapshot) Preview(changes map[string]string) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := &Snapshot{
		runID:     s.runID,
		revision:  s.revision,
		resources: make(map[string]string, len(s.resources)+len(changes)),
		applied:   make(map[string]time.Time, len(s.applied)),
	}
	for k, v := range s.resources {
		copied.resources[k] = v
	}
	for k, v := range changes {
		copied.resources[k] = v
	}
	for k, v := range s.applied {
		copied.applied[k] = v
	}
	return copied
}
