package ledger

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Invoice numbers take the form INV-YYYY-MM-NNNN, with NNNN a zero-padded
// counter that restarts every month. Uniqueness is enforced by the store; the
// allocator retries on collision rather than trusting its read of the last
// number under concurrency.

const (
	invoicePrefix       = "INV"
	invoiceCounterWidth = 4
	allocationAttempts  = 3
	allocationBackoff   = 100 * time.Millisecond
)

var invoicePattern = regexp.MustCompile(`^INV-\d{4}-\d{2}-\d{4}$`)

// MonthPrefix returns the month-scoped invoice prefix, e.g. "INV-2026-08".
func MonthPrefix(t time.Time) string {
	return fmt.Sprintf("%s-%04d-%02d", invoicePrefix, t.Year(), int(t.Month()))
}

// NextInvoiceNumber increments the counter of the last allocated number for
// the month. An empty or unparseable last number starts the month at 0001;
// fallback-form numbers never match the prefix and so never feed back into
// the counter.
func NextInvoiceNumber(prefix, last string) string {
	counter := 0
	if strings.HasPrefix(last, prefix+"-") {
		if n, err := strconv.Atoi(last[len(prefix)+1:]); err == nil {
			counter = n
		}
	}
	return fmt.Sprintf("%s-%0*d", prefix, invoiceCounterWidth, counter+1)
}

// FallbackInvoiceNumber builds the collision-resistant identifier used when
// sequential allocation is exhausted: INV-{unix_ms}-{3 digits}. It does not
// fit the monthly shape and display code must tolerate that.
func FallbackInvoiceNumber(now time.Time, rng *rand.Rand) string {
	suffix := rng.Intn(1000)
	return fmt.Sprintf("%s-%d-%03d", invoicePrefix, now.UnixMilli(), suffix)
}

// IsSequentialInvoiceNumber reports whether s fits the INV-YYYY-MM-NNNN shape.
func IsSequentialInvoiceNumber(s string) bool {
	return invoicePattern.MatchString(s)
}
