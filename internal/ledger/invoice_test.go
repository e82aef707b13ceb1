package ledger

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonthPrefix(t *testing.T) {
	require.Equal(t, "INV-2026-05", MonthPrefix(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)))
	require.Equal(t, "INV-2026-11", MonthPrefix(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNextInvoiceNumber(t *testing.T) {
	prefix := "INV-2026-05"

	require.Equal(t, "INV-2026-05-0001", NextInvoiceNumber(prefix, ""))
	require.Equal(t, "INV-2026-05-0010", NextInvoiceNumber(prefix, "INV-2026-05-0009"))
	require.Equal(t, "INV-2026-05-1000", NextInvoiceNumber(prefix, "INV-2026-05-0999"))

	// A month rollover never sees the previous month's numbers.
	require.Equal(t, "INV-2026-06-0001", NextInvoiceNumber("INV-2026-06", ""))

	// Fallback-form numbers don't carry the prefix and restart the counter.
	require.Equal(t, "INV-2026-05-0001", NextInvoiceNumber(prefix, "INV-1778760000000-042"))
}

func TestNextInvoiceNumberGrowsPastPadding(t *testing.T) {
	require.Equal(t, "INV-2026-05-10000", NextInvoiceNumber("INV-2026-05", "INV-2026-05-9999"))
}

func TestFallbackInvoiceNumber(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(1))

	n := FallbackInvoiceNumber(now, rng)
	require.True(t, strings.HasPrefix(n, "INV-"))
	require.False(t, IsSequentialInvoiceNumber(n))

	parts := strings.Split(n, "-")
	require.Len(t, parts, 3)
	require.Len(t, parts[2], 3)
}

func TestIsSequentialInvoiceNumber(t *testing.T) {
	require.True(t, IsSequentialInvoiceNumber("INV-2026-05-0001"))
	require.False(t, IsSequentialInvoiceNumber("INV-2026-05-001"))
	require.False(t, IsSequentialInvoiceNumber("INV-1778760000000-042"))
	require.False(t, IsSequentialInvoiceNumber("inv-2026-05-0001"))
}
