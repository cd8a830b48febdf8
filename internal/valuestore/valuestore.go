package valuestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"checkengine/internal/domain"
	"checkengine/internal/state"
)

const (
	keyPrefix  = "vs"
	maxRetries = 5
)

// Store is the per-service persistent key/value scratchpad of a check function.
// It is not safe for concurrent use; one check invocation owns it.
type Store struct {
	values  map[string]json.RawMessage
	dirty   map[string]struct{}
	deleted map[string]struct{}
}

func newStore(values map[string]json.RawMessage) *Store {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	return &Store{
		values:  values,
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

// Get decodes the value under key into dst.
// Params: key and destination pointer.
// Returns: presence flag or decode error.
func (s *Store) Get(key string, dst any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode value %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key.
// Params: key and JSON-encodable value.
// Returns: encode error.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value %q: %w", key, err)
	}
	s.values[key] = raw
	s.dirty[key] = struct{}{}
	delete(s.deleted, key)
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) {
	delete(s.values, key)
	delete(s.dirty, key)
	s.deleted[key] = struct{}{}
}

// Keys lists stored keys in order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) changed() bool {
	return len(s.dirty) > 0 || len(s.deleted) > 0
}

// applyTo replays local changes onto a concurrently updated snapshot.
func (s *Store) applyTo(values map[string]json.RawMessage) map[string]json.RawMessage {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	for key := range s.dirty {
		values[key] = s.values[key]
	}
	for key := range s.deleted {
		delete(values, key)
	}
	return values
}

// Manager hands out value-store namespaces backed by a state store.
// Access to one namespace is serialized inside the process.
type Manager struct {
	backend state.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates namespace manager.
// Params: state backend.
// Returns: manager instance.
func NewManager(backend state.Store) *Manager {
	return &Manager{backend: backend, locks: make(map[string]*sync.Mutex)}
}

// Key builds the state key of one namespace.
// Params: host and service id.
// Returns: escaped state key.
func Key(host domain.HostName, id domain.ServiceID) string {
	return state.Key(keyPrefix, string(host), id.String())
}

func (m *Manager) lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Namespace runs fn with the store of (host, service) and persists changes afterwards.
// Changes are flushed on every exit path of fn, including errors and panics.
// Params: context, host, service id and callback.
// Returns: callback error, or flush error when callback succeeded.
func (m *Manager) Namespace(ctx context.Context, host domain.HostName, id domain.ServiceID, fn func(*Store) error) (err error) {
	key := Key(host, id)
	unlock := m.lock(key)
	defer unlock()

	values, revision, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	store := newStore(values)

	defer func() {
		if !store.changed() {
			return
		}
		flushErr := m.flush(context.WithoutCancel(ctx), key, revision, store)
		if err == nil && flushErr != nil {
			err = flushErr
		}
	}()

	return fn(store)
}

func (m *Manager) load(ctx context.Context, key string) (map[string]json.RawMessage, uint64, error) {
	raw, revision, err := m.backend.Get(ctx, key)
	if errors.Is(err, state.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load value store %q: %w", key, err)
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, 0, fmt.Errorf("decode value store %q: %w", key, err)
	}
	return values, revision, nil
}

// flush writes store with compare-and-swap and retries on concurrent updates.
func (m *Manager) flush(ctx context.Context, key string, revision uint64, store *Store) error {
	values := store.values
	for attempt := 0; attempt < maxRetries; attempt++ {
		raw, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("encode value store %q: %w", key, err)
		}
		if revision == 0 {
			_, err = m.backend.Create(ctx, key, raw)
		} else {
			_, err = m.backend.Update(ctx, key, revision, raw)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, state.ErrConflict) && !errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("save value store %q: %w", key, err)
		}

		current, currentRevision, loadErr := m.load(ctx, key)
		if loadErr != nil {
			return loadErr
		}
		values = store.applyTo(current)
		revision = currentRevision
	}
	return fmt.Errorf("save value store %q: %w", key, state.ErrConflict)
}
