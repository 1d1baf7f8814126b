package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one ledger entry. Shares is signed: positive for a buy,
// negative for a sell. Price is the unit price at trade time.
type Trade struct {
	TradeID   int64
	Symbol    string
	Name      string
	Shares    int64
	Price     decimal.Decimal
	CreatedAt time.Time
}

// Total returns the cash amount the trade moved (always positive).
func (t Trade) Total() decimal.Decimal {
	shares := t.Shares
	if shares < 0 {
		shares = -shares
	}
	return t.Price.Mul(decimal.NewFromInt(shares))
}
