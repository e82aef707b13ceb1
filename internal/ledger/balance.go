package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/medirep/medirep/internal/shared"
)

// RunningBalance filters entries to the requested contact, orders them by
// (entry date, creation time) and attaches the cumulative debit minus credit to
// each. Positive balances mean the contact owes the business.
//
// The function is pure: it never mutates its input and the caller must supply
// the contact's full entry set, since a running balance over a partial prefix
// is meaningless.
func RunningBalance(entries []Entry, contactID int64) []EntryWithBalance {
	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ContactID != contactID || !e.Valid() {
			continue
		}
		filtered = append(filtered, e)
	}
	shared.SortByChrono(filtered, Entry.ChronoKey)

	out := make([]EntryWithBalance, 0, len(filtered))
	balance := decimal.Zero
	for _, e := range filtered {
		balance = balance.Add(e.Debit).Sub(e.Credit)
		out = append(out, EntryWithBalance{Entry: e, RunningBalance: balance})
	}
	return out
}

// Balance returns the contact's final balance over the entry set.
func Balance(entries []Entry, contactID int64) decimal.Decimal {
	withBalance := RunningBalance(entries, contactID)
	if len(withBalance) == 0 {
		return decimal.Zero
	}
	return withBalance[len(withBalance)-1].RunningBalance
}
