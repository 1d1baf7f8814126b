package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/paper_trading_web/internal/converter/dbConverter"
	"github.com/KotFed0t/paper_trading_web/internal/model"
	"github.com/KotFed0t/paper_trading_web/internal/model/dbModel"
	"github.com/KotFed0t/paper_trading_web/utils"
)

func (r *Postgres) InsertTrade(ctx context.Context, userID int64, trade model.Trade) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO trades(user_id, symbol, name, shares, price) VALUES($1, $2, $3, $4, $5)`

	slog.Debug("InsertTrade start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertTrade failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTrade completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID, trade.Symbol, trade.Name, trade.Shares, trade.Price)
	if err != nil {
		return err
	}

	return nil
}

// GetShares returns the net signed share count for (user, symbol).
func (r *Postgres) GetShares(ctx context.Context, userID int64, symbol string) (shares int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT COALESCE(SUM(shares), 0) FROM trades WHERE user_id = $1 AND symbol = $2`

	slog.Debug("GetShares start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetShares failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetShares completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, userID, symbol).Scan(&shares)
	if err != nil {
		return 0, err
	}

	return shares, nil
}

// GetPositions aggregates the user's ledger into open positions: net shares
// per symbol with the most recent trade name and price. Positions with a
// non-positive share sum are filtered out.
func (r *Postgres) GetPositions(ctx context.Context, userID int64) (positions []model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT symbol,
			(ARRAY_AGG(name ORDER BY dt_create DESC))[1] AS name,
			SUM(shares) AS shares,
			(ARRAY_AGG(price ORDER BY dt_create DESC))[1] AS last_price
		FROM trades
		WHERE user_id = $1
		GROUP BY symbol
		HAVING SUM(shares) > 0
		ORDER BY symbol
		`

	slog.Debug("GetPositions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetPositions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPositions completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var position dbModel.Position
		err = rows.StructScan(&position)
		if err != nil {
			return nil, err
		}
		positions = append(positions, dbConverter.ConvertPosition(position))
	}

	return positions, nil
}

func (r *Postgres) GetTrades(ctx context.Context, userID int64) (trades []model.Trade, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT trade_id, user_id, symbol, name, shares, price, dt_create
		FROM trades
		WHERE user_id = $1
		ORDER BY dt_create DESC, trade_id DESC
		`

	slog.Debug("GetTrades start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetTrades failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTrades completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	dbTrades := make([]dbModel.Trade, 0)
	for rows.Next() {
		var trade dbModel.Trade
		err = rows.StructScan(&trade)
		if err != nil {
			return nil, err
		}
		dbTrades = append(dbTrades, trade)
	}

	return dbConverter.ConvertTrades(dbTrades), nil
}

func (r *Postgres) DeleteTrades(ctx context.Context, userID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM trades WHERE user_id = $1`

	slog.Debug("DeleteTrades start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteTrades failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteTrades completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}

	return nil
}

// GetHeldSymbols returns every symbol any user currently holds. Used by the
// quote cache warm-up job.
func (r *Postgres) GetHeldSymbols(ctx context.Context) (symbols []string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT DISTINCT symbol FROM (
			SELECT user_id, symbol
			FROM trades
			GROUP BY user_id, symbol
			HAVING SUM(shares) > 0
		) held
		ORDER BY symbol
		`

	slog.Debug("GetHeldSymbols start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHeldSymbols failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHeldSymbols completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &symbols, query)
	if err != nil {
		return nil, err
	}

	return symbols, nil
}
