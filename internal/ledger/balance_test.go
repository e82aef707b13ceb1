package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func entry(contactID int64, date time.Time, createdAt time.Time, debit, credit int64) Entry {
	return Entry{
		ContactID: contactID,
		EntryDate: date,
		CreatedAt: createdAt,
		Debit:     decimal.NewFromInt(debit),
		Credit:    decimal.NewFromInt(credit),
	}
}

func TestRunningBalanceAccumulates(t *testing.T) {
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		entry(1, day, day.Add(1*time.Hour), 500, 0),
		entry(1, day, day.Add(2*time.Hour), 0, 200),
		entry(1, day.AddDate(0, 0, 1), day.Add(3*time.Hour), 150, 0),
	}

	out := RunningBalance(entries, 1)
	require.Len(t, out, 3)
	require.True(t, out[0].RunningBalance.Equal(decimal.NewFromInt(500)))
	require.True(t, out[1].RunningBalance.Equal(decimal.NewFromInt(300)))
	require.True(t, out[2].RunningBalance.Equal(decimal.NewFromInt(450)))
	require.True(t, Balance(entries, 1).Equal(decimal.NewFromInt(450)))
}

// Entries on the same date are ordered by creation time, so a back-dated
// reversal lands after the entry it cancels regardless of input order.
func TestRunningBalanceTieBreaksOnCreatedAt(t *testing.T) {
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	reversal := entry(1, day, day.Add(5*time.Hour), 0, 300)
	charge := entry(1, day, day.Add(1*time.Hour), 300, 0)

	out := RunningBalance([]Entry{reversal, charge}, 1)
	require.Len(t, out, 2)
	require.True(t, out[0].Debit.Equal(decimal.NewFromInt(300)))
	require.True(t, out[0].RunningBalance.Equal(decimal.NewFromInt(300)))
	require.True(t, out[1].RunningBalance.IsZero())
}

func TestRunningBalanceFiltersOtherContacts(t *testing.T) {
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		entry(1, day, day, 100, 0),
		entry(2, day, day, 999, 0),
	}

	out := RunningBalance(entries, 1)
	require.Len(t, out, 1)
	require.True(t, out[0].RunningBalance.Equal(decimal.NewFromInt(100)))
}

func TestRunningBalanceSkipsMalformedEntries(t *testing.T) {
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		entry(1, day, day.Add(time.Hour), 100, 0),
		entry(1, day, day.Add(2*time.Hour), -50, 0),
		entry(1, day, day.Add(3*time.Hour), 0, -25),
	}

	out := RunningBalance(entries, 1)
	require.Len(t, out, 1)
	require.True(t, Balance(entries, 1).Equal(decimal.NewFromInt(100)))
}

func TestRunningBalanceDoesNotMutateInput(t *testing.T) {
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		entry(1, day.AddDate(0, 0, 1), day.Add(time.Hour), 100, 0),
		entry(1, day, day.Add(2*time.Hour), 50, 0),
	}

	_ = RunningBalance(entries, 1)
	require.Equal(t, day.AddDate(0, 0, 1), entries[0].EntryDate)
	require.Equal(t, day, entries[1].EntryDate)
}

func TestBalanceEmptySetIsZero(t *testing.T) {
	require.True(t, Balance(nil, 1).IsZero())
}
