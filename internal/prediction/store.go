package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/state"
)

const keyPrefix = "pred"

// Record is one persisted prediction for a metric slot.
type Record struct {
	Metric     string        `json:"metric"`
	Period     params.Period `json:"period"`
	Horizon    int           `json:"horizon"`
	SlotFrom   time.Time     `json:"slot_from"`
	ValidUntil time.Time     `json:"valid_until"`
	Found      bool          `json:"found"`
	Stats      Stats         `json:"stats"`
}

// Store persists computed predictions in the state store.
type Store struct {
	backend state.Store
}

// NewStore wraps a state backend.
// Params: state backend (nil disables persistence).
// Returns: prediction store.
func NewStore(backend state.Store) *Store {
	return &Store{backend: backend}
}

// Key builds the state key of one prediction.
// Params: host, service, metric, period and horizon.
// Returns: escaped state key.
func Key(host domain.HostName, service domain.ServiceName, metric string, period params.Period, horizon int) string {
	return state.Key(keyPrefix, string(host), string(service), metric, string(period), strconv.Itoa(horizon))
}

// Load returns stored record when it is still valid at now.
// Params: context, key and reference time.
// Returns: record, presence flag and backend error.
func (s *Store) Load(ctx context.Context, key string, now time.Time) (Record, bool, error) {
	if s == nil || s.backend == nil {
		return Record{}, false, nil
	}
	raw, _, err := s.backend.Get(ctx, key)
	if errors.Is(err, state.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load prediction %q: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode prediction %q: %w", key, err)
	}
	if !now.Before(rec.ValidUntil) || now.Before(rec.SlotFrom) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save writes record under key.
// Params: context, key and record.
// Returns: backend error.
func (s *Store) Save(ctx context.Context, key string, rec Record) error {
	if s == nil || s.backend == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode prediction %q: %w", key, err)
	}
	if _, err := s.backend.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("save prediction %q: %w", key, err)
	}
	return nil
}
