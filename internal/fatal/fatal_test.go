package fatal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"checkengine/internal/domain"
)

func TestIsRecognizesMarkersAndTimeouts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"marked", Mark(errors.New("boom")), true},
		{"wrapped mark", fmt.Errorf("ctx: %w", Mark(errors.New("boom"))), true},
		{"timeout", fmt.Errorf("check: %w", domain.ErrTimeout), true},
		{"deadline", context.DeadlineExceeded, true},
		{"contract", &domain.ContractViolation{Value: 42}, true},
		{"configuration", &domain.ConfigurationError{Msg: "bad"}, true},
		{"ignore", domain.NewIgnoreResultsError("later"), false},
	}
	for _, tc := range cases {
		if got := Is(tc.err); got != tc.want {
			t.Fatalf("%s: Is()=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMarkNil(t *testing.T) {
	t.Parallel()

	if Mark(nil) != nil {
		t.Fatalf("expected nil")
	}
}
