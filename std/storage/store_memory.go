package storage

import (
	"sync"
)

// Store implementation in memory, for tests and volatile runs
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string][]byte)}
}

func (s *MemoryStore) Update(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(value) == 0 {
		delete(s.m, key)
		return nil
	}

	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Iterate(fn func(key string, value []byte) error) error {
	// take a snapshot so fn may call back into the store
	s.mu.RLock()
	type entry struct {
		key   string
		value []byte
	}
	entries := make([]entry, 0, len(s.m))
	for k, v := range s.m {
		entries = append(entries, entry{k, v})
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}

	return nil
}

func (s *MemoryStore) EraseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) Flush() error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
