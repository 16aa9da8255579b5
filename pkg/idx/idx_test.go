package idx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.Len(t, id.String(), 26)

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	// Lowercase input comes back canonical
	parsed, err = idx.Parse(strings.ToLower(id.String()))
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(in)
		require.ErrorIs(t, err, idx.ErrInvalid, "input %q", in)
	}
}

func TestOrdering(t *testing.T) {
	a := idx.NewAt(time.Unix(1, 0).UTC())
	b := idx.NewAt(time.Unix(2, 0).UTC())

	require.Equal(t, -1, idx.Compare(a, b))
	require.Equal(t, 1, idx.Compare(b, a))
	require.Equal(t, 0, idx.Compare(a, a))
}

func TestMonotonicWithinSameMillisecond(t *testing.T) {
	tm := time.Unix(1700000000, 0).UTC()
	prev := idx.NewAt(tm)
	for range 100 {
		next := idx.NewAt(tm)
		require.Equal(t, -1, idx.Compare(prev, next))
		prev = next
	}
}

func TestTimeExtraction(t *testing.T) {
	tm := time.Unix(1700000000, 0).UTC()
	id := idx.NewAt(tm)
	require.WithinDuration(t, tm, id.Time(), time.Millisecond)
	require.True(t, idx.ID("").Time().IsZero())
	require.True(t, idx.ID("garbage").Time().IsZero())
}

func TestNewPrefixed(t *testing.T) {
	id := idx.NewPrefixed("cli")
	require.True(t, strings.HasPrefix(id, "cli_"))
	require.Len(t, id, len("cli_")+26)
	require.Equal(t, strings.ToLower(id), id)

	_, err := idx.Parse(strings.TrimPrefix(id, "cli_"))
	require.NoError(t, err)
}
