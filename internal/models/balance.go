package models

import "github.com/shopspring/decimal"

// Balance is the merchant's three-bucket account. Only the ledger package mutates Available.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Retained  decimal.Decimal `json:"retained"`
	Blocked   decimal.Decimal `json:"blocked"`
}

// Total is the sum of all buckets, including funds that cannot be withdrawn.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Retained).Add(b.Blocked)
}

// Covers reports whether Available alone can pay amount.
func (b Balance) Covers(amount decimal.Decimal) bool {
	return b.Available.GreaterThanOrEqual(amount)
}
