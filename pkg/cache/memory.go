package cache

import (
	"path"
	"sync"
	"time"
)

// MemoryStore is the in-process L1 tier: a mutex-guarded map of encoded
// payloads with per-entry expiry. Expired entries are evicted lazily on
// read; Sweep removes them eagerly. No I/O happens under the lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]l1Entry
	bytes   int64
}

type l1Entry struct {
	data []byte
	// expiresAt is zero for entries that never expire.
	expiresAt time.Time
}

func (e l1Entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates an empty L1 store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]l1Entry)}
}

// Get returns the stored payload, evicting it first when expired.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		s.removeLocked(key, entry)
		return nil, false
	}
	return entry.data, true
}

// Set stores a payload. ttl <= 0 means the entry never expires.
func (s *MemoryStore) Set(key string, data []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.bytes -= int64(len(old.data))
	}
	s.entries[key] = l1Entry{data: data, expiresAt: expiresAt}
	s.bytes += int64(len(data))
}

// Delete removes a key, reporting whether it was present.
func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeLocked(key, entry)
	return true
}

// Sweep removes every currently-expired entry and returns the count.
func (s *MemoryStore) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			s.removeLocked(key, entry)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries, counting expired-but-unswept ones.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// SizeBytes returns the total payload size held, the L1 memory estimate
// reported by metrics.
func (s *MemoryStore) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Keys returns the unexpired keys matching a glob pattern. Keys never
// contain '/', so path.Match semantics line up with Redis glob matching.
func (s *MemoryStore) Keys(pattern string) []string {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []string
	for key, entry := range s.entries {
		if entry.expired(now) {
			continue
		}
		if ok, err := path.Match(pattern, key); err == nil && ok {
			matched = append(matched, key)
		}
	}
	return matched
}

func (s *MemoryStore) removeLocked(key string, entry l1Entry) {
	s.bytes -= int64(len(entry.data))
	delete(s.entries, key)
}
