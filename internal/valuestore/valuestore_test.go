package valuestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"checkengine/internal/domain"
	"checkengine/internal/state"
)

var dfVar = domain.ServiceID{Plugin: "df", Item: "/var"}

func TestNamespacePersistsAcrossCalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager := NewManager(state.NewMemoryStore())

	err := manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		return s.Set("last", 42.5)
	})
	require.NoError(t, err)

	var got float64
	err = manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		found, err := s.Get("last", &got)
		require.True(t, found)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 42.5, got)

	err = manager.Namespace(ctx, "web02", dfVar, func(s *Store) error {
		require.Empty(t, s.Keys())
		return nil
	})
	require.NoError(t, err)
}

func TestNamespaceFlushesOnErrorAndPanic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager := NewManager(state.NewMemoryStore())
	boom := errors.New("boom")

	err := manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		require.NoError(t, s.Set("a", 1))
		return boom
	})
	require.ErrorIs(t, err, boom)

	func() {
		defer func() { require.NotNil(t, recover()) }()
		_ = manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
			require.NoError(t, s.Set("b", 2))
			panic("plugin bug")
		})
	}()

	err = manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		require.Equal(t, []string{"a", "b"}, s.Keys())
		s.Delete("a")
		return nil
	})
	require.NoError(t, err)

	err = manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		require.Equal(t, []string{"b"}, s.Keys())
		return nil
	})
	require.NoError(t, err)
}

func TestFlushMergesConcurrentUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := state.NewMemoryStore()
	first := NewManager(backend)
	second := NewManager(backend)

	require.NoError(t, first.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		require.NoError(t, s.Set("mine", "x"))
		return second.Namespace(ctx, "web01", dfVar, func(s *Store) error {
			return s.Set("theirs", "y")
		})
	}))

	require.NoError(t, first.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		require.Equal(t, []string{"mine", "theirs"}, s.Keys())
		return nil
	}))
}

func TestNamespaceSerializesAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager := NewManager(state.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
				var n int
				if _, err := s.Get("n", &n); err != nil {
					return err
				}
				return s.Set("n", n+1)
			})
		}()
	}
	wg.Wait()

	var n int
	require.NoError(t, manager.Namespace(ctx, "web01", dfVar, func(s *Store) error {
		_, err := s.Get("n", &n)
		return err
	}))
	require.Equal(t, 20, n)
}

func TestGetRate(t *testing.T) {
	t.Parallel()

	store := newStore(nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := GetRate(store, "ctxt", start, 100, true)
	var ignore *domain.IgnoreResultsError
	require.ErrorAs(t, err, &ignore)
	require.Contains(t, ignore.Message, "initialized")

	rate, err := GetRate(store, "ctxt", start.Add(10*time.Second), 150, true)
	require.NoError(t, err)
	require.InDelta(t, 5, rate, 1e-9)

	_, err = GetRate(store, "ctxt", start.Add(10*time.Second), 160, true)
	require.ErrorAs(t, err, &ignore)

	_, err = GetRate(store, "ctxt", start.Add(20*time.Second), 10, true)
	require.ErrorAs(t, err, &ignore)
	require.Contains(t, ignore.Message, "wrapped")

	rate, err = GetRate(store, "ctxt", start.Add(30*time.Second), 5, false)
	require.NoError(t, err)
	require.Zero(t, rate)
}
