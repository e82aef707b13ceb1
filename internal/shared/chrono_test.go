package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChronoKeyOrdersByDateThenCreation(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	morning := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)

	require.True(t, NewChronoKey(day1, evening).Less(NewChronoKey(day2, morning)))
	require.True(t, NewChronoKey(day1, morning).Less(NewChronoKey(day1, evening)))
	require.False(t, NewChronoKey(day1, evening).Less(NewChronoKey(day1, morning)))
}

func TestChronoKeyTruncatesDateComponent(t *testing.T) {
	a := NewChronoKey(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), time.Time{})
	b := NewChronoKey(time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC), time.Time{})
	require.True(t, a.Date.Equal(b.Date))
}

func TestChronoKeyMissingDateFallsBackToCreation(t *testing.T) {
	early := NewChronoKey(time.Time{}, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	late := NewChronoKey(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.True(t, early.Less(late))
}

func TestSortByChronoIsStable(t *testing.T) {
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	type item struct {
		label string
		key   ChronoKey
	}
	items := []item{
		{"first", NewChronoKey(day, created)},
		{"second", NewChronoKey(day, created)},
	}
	SortByChrono(items, func(it item) ChronoKey { return it.key })
	require.Equal(t, "first", items[0].label)
	require.Equal(t, "second", items[1].label)
}
