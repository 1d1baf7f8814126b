package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Trade struct {
	TradeID   int64           `db:"trade_id"`
	UserID    int64           `db:"user_id"`
	Symbol    string          `db:"symbol"`
	Name      string          `db:"name"`
	Shares    int64           `db:"shares"`
	Price     decimal.Decimal `db:"price"`
	CreatedAt time.Time       `db:"dt_create"`
}

type Position struct {
	Symbol    string          `db:"symbol"`
	Name      string          `db:"name"`
	Shares    int64           `db:"shares"`
	LastPrice decimal.Decimal `db:"last_price"`
}
