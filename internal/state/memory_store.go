package state

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps key/value state in process memory for single-instance mode.
// Params: in-memory map guarded by RW mutex.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	lastRev uint64
}

type memoryEntry struct {
	value    []byte
	revision uint64
}

// NewMemoryStore creates in-memory state store.
// Params: none.
// Returns: initialized in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns value and revision.
// Params: key.
// Returns: stored value copy, revision, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), entry.value...), entry.revision, nil
}

// Put writes value unconditionally.
// Params: key and value.
// Returns: new revision.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(key, value), nil
}

// Create writes value only when key is absent.
// Params: key and value.
// Returns: new revision or ErrConflict.
func (s *MemoryStore) Create(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return 0, ErrConflict
	}
	return s.storeLocked(key, value), nil
}

// Update writes value using expected revision CAS.
// Params: key, expected revision and replacement value.
// Returns: new revision, ErrNotFound or ErrConflict.
func (s *MemoryStore) Update(_ context.Context, key string, expectedRevision uint64, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return 0, ErrNotFound
	}
	if entry.revision != expectedRevision {
		return 0, ErrConflict
	}
	return s.storeLocked(key, value), nil
}

// storeLocked stores a copy of value under the next global revision.
// Params: key and value; caller holds write lock.
// Returns: assigned revision.
func (s *MemoryStore) storeLocked(key string, value []byte) uint64 {
	s.lastRev++
	s.entries[key] = memoryEntry{value: append([]byte(nil), value...), revision: s.lastRev}
	return s.lastRev
}

// Delete removes key.
// Params: key.
// Returns: nil (in-memory delete).
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// ListKeys lists keys by prefix in sorted order.
// Params: key prefix.
// Returns: matching keys.
func (s *MemoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0)
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
