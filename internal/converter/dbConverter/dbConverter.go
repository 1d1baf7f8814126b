package dbConverter

import (
	"github.com/KotFed0t/paper_trading_web/internal/model"
	"github.com/KotFed0t/paper_trading_web/internal/model/dbModel"
)

func ConvertUser(u dbModel.User) model.User {
	return model.User{
		ID:        u.UserID,
		Username:  u.Username,
		PassHash:  u.PassHash,
		Cash:      u.Cash,
		CreatedAt: u.CreatedAt,
	}
}

func ConvertTrade(t dbModel.Trade) model.Trade {
	return model.Trade{
		TradeID:   t.TradeID,
		Symbol:    t.Symbol,
		Name:      t.Name,
		Shares:    t.Shares,
		Price:     t.Price,
		CreatedAt: t.CreatedAt,
	}
}

func ConvertTrades(trades []dbModel.Trade) []model.Trade {
	res := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		res = append(res, ConvertTrade(t))
	}
	return res
}

func ConvertPosition(p dbModel.Position) model.Holding {
	return model.Holding{
		Symbol: p.Symbol,
		Name:   p.Name,
		Shares: p.Shares,
		Price:  p.LastPrice,
	}
}
