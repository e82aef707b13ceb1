package shared

import (
	"sort"
	"time"
)

// ChronoKey is the ordering tuple used across the stock and ledger modules:
// events are replayed by calendar date first, with the record creation time as
// the tie-breaker for same-date entries.
type ChronoKey struct {
	Date      time.Time
	CreatedAt time.Time
}

// NewChronoKey builds a key, truncating the event date to midnight UTC so two
// timestamps on the same calendar day compare equal on the date component.
func NewChronoKey(date, createdAt time.Time) ChronoKey {
	return ChronoKey{Date: truncateToDay(date), CreatedAt: createdAt}
}

// Less reports whether k orders before other.
func (k ChronoKey) Less(other ChronoKey) bool {
	if k.Date.IsZero() || other.Date.IsZero() {
		// Degrade to creation order when either date is missing.
		return k.CreatedAt.Before(other.CreatedAt)
	}
	if !k.Date.Equal(other.Date) {
		return k.Date.Before(other.Date)
	}
	return k.CreatedAt.Before(other.CreatedAt)
}

// SortByChrono stable-sorts items by their chrono key.
func SortByChrono[T any](items []T, key func(T) ChronoKey) {
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i]).Less(key(items[j]))
	})
}

func truncateToDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
