package replay

import (
	"sync"
	"time"
)

// DefaultRetention keeps entries for a day, which must exceed the longest
// configured authorization validity window.
const DefaultRetention = 24 * time.Hour

// MemoryStore is a mutex-guarded Store for single-process deployments.
// Expired entries are swept lazily on insertion.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates a store that forgets keys after retention.
// Non-positive retention falls back to DefaultRetention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		entries:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) TryInsert(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	if _, exists := s.entries[key]; exists {
		return false
	}
	s.entries[key] = s.now()
	return true
}

func (s *MemoryStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, exists := s.entries[key]
	if !exists {
		return false
	}
	if s.now().Sub(inserted) > s.retention {
		delete(s.entries, key)
		return false
	}
	return true
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

// sweepLocked removes expired entries. Callers must hold the lock.
func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for key, inserted := range s.entries {
		if now.Sub(inserted) > s.retention {
			delete(s.entries, key)
		}
	}
}
