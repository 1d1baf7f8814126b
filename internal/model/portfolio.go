package model

import (
	"github.com/shopspring/decimal"
)

// Holding is an aggregated position derived from the ledger at read time.
// PriceStale marks a position valued at its last trade price because the
// live quote could not be resolved.
type Holding struct {
	Symbol     string
	Name       string
	Shares     int64
	Price      decimal.Decimal
	Value      decimal.Decimal
	PriceStale bool
}

type Portfolio struct {
	Cash        decimal.Decimal
	StocksValue decimal.Decimal
	NetWorth    decimal.Decimal
	Holdings    []Holding
}
