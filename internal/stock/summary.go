package stock

import "github.com/medirep/medirep/internal/shared"

// Summarize replays a product's transactions into a point-in-time summary.
// It is pure and deterministic: the same transaction set always produces the
// same summary, and the input slice is never mutated.
//
// The bucketing follows the established reporting convention: positive
// opening/adjustment quantities accumulate into Opening, negative ones into
// Sales. Changing it would silently shift historical reports, so it stays
// until the product owner signs off on a separate adjustments bucket.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		switch tx.Type {
		case TypeOpening, TypeAdjustment:
			if tx.Quantity > 0 {
				s.Opening += tx.Quantity
			} else {
				s.Sales += -tx.Quantity
			}
		case TypePurchase:
			s.Purchases += abs(tx.Quantity)
		case TypeSale:
			s.Sales += abs(tx.Quantity)
		case TypeSaleReversal:
			s.Sales -= abs(tx.Quantity)
		}
	}
	if s.Sales < 0 {
		s.Sales = 0
	}
	s.Closing = s.Opening + s.Purchases - s.Sales
	if s.Closing < 0 {
		s.Closing = 0
	}
	return s
}

// SortTransactions orders transactions by (transaction date, creation time),
// the replay order used everywhere in this package.
func SortTransactions(txs []Transaction) {
	shared.SortByChrono(txs, Transaction.ChronoKey)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
