package memory

import (
	"context"
	"slices"
	"sync"
)

// SnapshotStore keeps encoded session records in process memory. It does not survive restarts and
// is meant for tests and single-run demos.
type SnapshotStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{records: make(map[string][]byte)}
}

func (s *SnapshotStore) Save(_ context.Context, contextID string, data []byte) error {
	s.mu.Lock()
	s.records[contextID] = slices.Clone(data)
	s.mu.Unlock()
	return nil
}

func (s *SnapshotStore) LoadAll(_ context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.records))
	for k, v := range s.records {
		out[k] = slices.Clone(v)
	}
	return out, nil
}

func (s *SnapshotStore) Delete(_ context.Context, contextID string) error {
	s.mu.Lock()
	delete(s.records, contextID)
	s.mu.Unlock()
	return nil
}
