// Package history keeps each trainee's finished attempts, newest first,
// capped at a fixed number of entries.
package history

import (
	"context"
	"sync"

	"github.com/clinsim/backend/internal/models"
)

const DefaultMaxEntries = 20

// ── Memory ──────────────────────────────────────────────

type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	records map[string][]models.HistoryRecord
}

func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &MemoryStore{max: max, records: make(map[string][]models.HistoryRecord)}
}

func (s *MemoryStore) Append(ctx context.Context, key string, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]models.HistoryRecord{rec}, s.records[key]...)
	if len(list) > s.max {
		list = list[:s.max]
	}
	s.records[key] = list
	return nil
}

func (s *MemoryStore) List(ctx context.Context, key string) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryRecord, len(s.records[key]))
	copy(out, s.records[key])
	return out, nil
}
