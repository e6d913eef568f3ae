package idx_test

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabmail/pkg/idx"
)

func TestNewParses(t *testing.T) {
	t.Parallel()

	id := idx.New()
	require.False(t, id.IsZero())
	require.Len(t, id.String(), 26)

	parsed, err := idx.Parse(" " + id.String() + " ")
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	for _, bad := range []string{"", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(bad)
		require.ErrorIs(t, err, idx.ErrInvalid, bad)
	}
}

// Not parallel: an interleaved New at another millisecond reseeds the
// monotonic entropy.
func TestSameMillisecondStaysOrdered(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = idx.NewAt(at).String()
	}

	require.True(t, sort.StringsAreSorted(ids))
	require.WithinDuration(t, at, idx.ID(ids[0]).Time(), time.Millisecond)
	require.True(t, idx.Zero.Time().IsZero())
}
