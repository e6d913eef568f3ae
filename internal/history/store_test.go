package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, limit int) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"), limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func queries(t *testing.T, s *Store) []string {
	t.Helper()

	entries, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Query)
	}
	return out
}

func TestAddOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 10)
	ctx := context.Background()

	for _, q := range []string{"invoice", "from:alice", "  ", "label:work"} {
		require.NoError(t, s.Add(ctx, q))
	}
	require.Equal(t, []string{"label:work", "from:alice", "invoice"}, queries(t, s))

	t.Run("re-adding moves to front without duplicating", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, " Invoice "))
		require.Equal(t, []string{"Invoice", "label:work", "from:alice"}, queries(t, s))
	})

	t.Run("entries carry their timestamp", func(t *testing.T) {
		entries, err := s.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, time.Date(2026, 5, 1, 8, 0, 4, 0, time.UTC), entries[0].UsedAt.UTC())
	})
}

func TestAddPrunesToLimit(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 3)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Add(ctx, q))
	}
	require.Equal(t, []string{"e", "d", "c"}, queries(t, s))
}

func TestRemoveAndClear(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "one"))
	require.NoError(t, s.Add(ctx, "two"))

	require.NoError(t, s.Remove(ctx, "ONE"))
	require.NoError(t, s.Remove(ctx, "missing"))
	require.Equal(t, []string{"two"}, queries(t, s))

	require.NoError(t, s.Clear(ctx))
	require.Empty(t, queries(t, s))
}

func TestReopenKeepsHistory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path, 5)
	require.NoError(t, err)
	require.NoError(t, s.Add(context.Background(), "persisted"))
	require.NoError(t, s.Close())

	s, err = Open(path, 5)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, []string{"persisted"}, queries(t, s))
}
