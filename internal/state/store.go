package state

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates absent key.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates revision mismatch for CAS update or create of existing key.
	ErrConflict = errors.New("revision conflict")
)

// Store provides revisioned key/value persistence for value stores and predictions.
// Params: CRUD operations over opaque byte values and prefix listing.
// Returns: backend persistence behavior.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, uint64, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, expectedRevision uint64, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Key joins escaped segments into a bucket-safe key.
// Segments keep [A-Za-z0-9_-]; other bytes become "=XX".
// Params: key segments such as namespace, host and service id.
// Returns: dot-separated key.
func Key(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, escapeSegment(segment))
	}
	return strings.Join(escaped, ".")
}

const hexDigits = "0123456789ABCDEF"

func escapeSegment(segment string) string {
	if segment == "" {
		return "="
	}
	var builder strings.Builder
	builder.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			builder.WriteByte(c)
		default:
			builder.WriteByte('=')
			builder.WriteByte(hexDigits[c>>4])
			builder.WriteByte(hexDigits[c&0x0f])
		}
	}
	return builder.String()
}
