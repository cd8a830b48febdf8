package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"checkengine/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSStore persists key/value state in one JetStream KV bucket.
// Params: NATS connection, JetStream context, and KV bucket handle.
// Returns: KV-backed state store implementation.
type NATSStore struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	kv       nats.KeyValue
	settings config.NATSStateConfig
}

// NewNATSStore opens (or creates) KV bucket and returns NATS state backend.
// Params: NATS/JetStream settings from config.
// Returns: initialized NATS store or setup error.
func NewNATSStore(settings config.NATSStateConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: settings.Bucket,
			TTL:    time.Duration(settings.TTLSec) * time.Second,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create bucket %q: %w", settings.Bucket, err)
		}
	}

	return &NATSStore{
		nc:       nc,
		js:       js,
		kv:       kv,
		settings: settings,
	}, nil
}

// Get reads one value and its KV revision.
// Params: key.
// Returns: value, revision, or ErrNotFound.
func (s *NATSStore) Get(_ context.Context, key string) ([]byte, uint64, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get %q: %w", key, err)
	}
	return entry.Value(), entry.Revision(), nil
}

// Put writes value unconditionally.
// Params: key and value.
// Returns: new KV revision.
func (s *NATSStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(key, value)
	if err != nil {
		return 0, fmt.Errorf("put %q: %w", key, err)
	}
	return rev, nil
}

// Create writes value only when key does not exist.
// Params: key and value.
// Returns: new KV revision or ErrConflict.
func (s *NATSStore) Create(_ context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(key, value)
	if err != nil {
		if isConflict(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("create %q: %w", key, err)
	}
	return rev, nil
}

// Update writes value using expected revision CAS.
// Params: key, expected revision, and replacement value.
// Returns: new KV revision or ErrConflict.
func (s *NATSStore) Update(_ context.Context, key string, expectedRevision uint64, value []byte) (uint64, error) {
	rev, err := s.kv.Update(key, value, expectedRevision)
	if err != nil {
		if isConflict(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("update %q: %w", key, err)
	}
	return rev, nil
}

func isConflict(err error) bool {
	return errors.Is(err, nats.ErrKeyExists) || strings.Contains(strings.ToLower(err.Error()), "wrong last sequence")
}

// Delete deletes key.
// Params: key.
// Returns: delete error.
func (s *NATSStore) Delete(_ context.Context, key string) error {
	if err := s.kv.Delete(key); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// ListKeys lists bucket keys by prefix.
// Params: key prefix.
// Returns: sorted matching keys.
func (s *NATSStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]string, 0)
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close closes underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
