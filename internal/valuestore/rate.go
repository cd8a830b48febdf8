package valuestore

import (
	"time"

	"checkengine/internal/domain"
)

type counter struct {
	At    float64 `json:"at"`
	Value float64 `json:"value"`
}

// GetRate computes the per-second rate of a monotonic counter.
// The first call for a key and a counter that moved backwards store the
// sample and return an ignore-results error.
// Params: store, counter key, sample time, counter value and wrap handling.
// Returns: rate or *domain.IgnoreResultsError.
func GetRate(store *Store, key string, now time.Time, value float64, raiseOverflow bool) (float64, error) {
	at := float64(now.UnixNano()) / float64(time.Second)

	var last counter
	found, err := store.Get(key, &last)
	if err != nil {
		return 0, err
	}
	if err := store.Set(key, counter{At: at, Value: value}); err != nil {
		return 0, err
	}

	if !found {
		return 0, domain.NewIgnoreResultsError("Counter %q has been initialized", key)
	}
	elapsed := at - last.At
	if elapsed <= 0 {
		return 0, domain.NewIgnoreResultsError("No time difference for counter %q", key)
	}
	delta := value - last.Value
	if delta < 0 {
		if raiseOverflow {
			return 0, domain.NewIgnoreResultsError("Counter %q wrapped, resetting", key)
		}
		return 0, nil
	}
	return delta / elapsed, nil
}
