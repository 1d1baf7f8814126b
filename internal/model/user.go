package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64
	Username  string
	PassHash  string
	Cash      decimal.Decimal
	CreatedAt time.Time
}
