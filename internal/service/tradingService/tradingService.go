package tradingService

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/paper_trading_web/config"
	"github.com/KotFed0t/paper_trading_web/data/repository"
	"github.com/KotFed0t/paper_trading_web/internal/externalApi"
	"github.com/KotFed0t/paper_trading_web/internal/model"
	"github.com/KotFed0t/paper_trading_web/internal/model/quoteModel"
	"github.com/KotFed0t/paper_trading_web/internal/service"
	"github.com/KotFed0t/paper_trading_web/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type QuoteApi interface {
	GetQuote(ctx context.Context, symbol string) (quoteModel.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]quoteModel.Quote, error)
}

type Cache interface {
	GetQuote(ctx context.Context, symbol string) (quoteModel.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]quoteModel.Quote, error)
	SetQuote(ctx context.Context, quote quoteModel.Quote) error
	SetQuotes(ctx context.Context, quotes []quoteModel.Quote) error
}

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	InsertUser(ctx context.Context, username, passHash string, cash decimal.Decimal) (userID int64, err error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	GetCash(ctx context.Context, userID int64) (decimal.Decimal, error)
	AdjustCash(ctx context.Context, userID int64, delta decimal.Decimal) error
	SetCash(ctx context.Context, userID int64, cash decimal.Decimal) error
	DeleteUser(ctx context.Context, userID int64) error
	InsertTrade(ctx context.Context, userID int64, trade model.Trade) error
	GetShares(ctx context.Context, userID int64, symbol string) (int64, error)
	GetPositions(ctx context.Context, userID int64) ([]model.Holding, error)
	GetTrades(ctx context.Context, userID int64) ([]model.Trade, error)
	DeleteTrades(ctx context.Context, userID int64) error
	GetHeldSymbols(ctx context.Context) ([]string, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, trades []model.Trade) (fileBytes []byte, fileExtension string, err error)
}

type TradingService struct {
	cfg          *config.Config
	repo         Repository
	cache        Cache
	quoteApi     QuoteApi
	reports      ReportGenerator
	startingCash decimal.Decimal
}

func New(cfg *config.Config, repo Repository, cache Cache, quoteApi QuoteApi, reports ReportGenerator) *TradingService {
	startingCash, err := decimal.NewFromString(cfg.StartingCash)
	if err != nil {
		panic("invalid STARTING_CASH value: " + cfg.StartingCash)
	}

	return &TradingService{
		cfg:          cfg,
		repo:         repo,
		cache:        cache,
		quoteApi:     quoteApi,
		reports:      reports,
		startingCash: startingCash,
	}
}

func (s *TradingService) Register(ctx context.Context, username, password, confirmation string) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Register"

	slog.Debug("Register start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Register finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	if username == "" || password == "" || confirmation == "" {
		return 0, service.ErrEmptyField
	}

	if password != confirmation {
		return 0, service.ErrPasswordMismatch
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("got error from bcrypt.GenerateFromPassword", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	userID, err = s.repo.InsertUser(ctx, username, string(passHash), s.startingCash)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return 0, service.ErrUserAlreadyExists
		}
		slog.Error("got error from repo.InsertUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return userID, nil
}

func (s *TradingService) Login(ctx context.Context, username, password string) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Login"

	slog.Debug("Login start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Login finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	if username == "" || password == "" {
		return 0, service.ErrEmptyField
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, service.ErrWrongCredentials
		}
		slog.Error("got error from repo.GetUserByUsername", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(password)); err != nil {
		return 0, service.ErrWrongCredentials
	}

	return user.ID, nil
}

// GetQuote resolves a live quote, cache first. A fresh provider quote is
// written back to the cache without blocking the caller.
func (s *TradingService) GetQuote(ctx context.Context, symbol string) (quote quoteModel.Quote, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.GetQuote"

	slog.Debug("GetQuote start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	defer func() {
		slog.Debug("GetQuote finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	if symbol == "" {
		return quoteModel.Quote{}, service.ErrNotFound
	}

	quote, err = s.cache.GetQuote(ctx, symbol)
	if err == nil {
		return quote, nil
	}

	quote, err = s.quoteApi.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			slog.Warn("symbol not found in quoteApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
			return quoteModel.Quote{}, service.ErrNotFound
		}
		slog.Error("can't get quote from quoteApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return quoteModel.Quote{}, service.ErrQuoteUnavailable
	}

	go s.cache.SetQuote(context.WithoutCancel(ctx), quote)

	return quote, nil
}

// Buy resolves the quote, then inside a single transaction checks that
// price*shares does not exceed the user's cash, appends the ledger row and
// debits the balance. Either both writes commit or neither does.
func (s *TradingService) Buy(ctx context.Context, userID int64, symbol string, shares int64) (trade model.Trade, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Buy"

	slog.Debug("Buy start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.Int64("shares", shares))
	defer func() {
		slog.Debug("Buy finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	if shares <= 0 {
		return model.Trade{}, service.ErrInvalidShares
	}

	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return model.Trade{}, err
	}

	cost := quote.Price.Mul(decimal.NewFromInt(shares))

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		cash, err := s.repo.GetCash(ctx, userID)
		if err != nil {
			return err
		}

		if cost.GreaterThan(cash) {
			return service.ErrInsufficientFunds
		}

		trade = model.Trade{
			Symbol: quote.Symbol,
			Name:   quote.Name,
			Shares: shares,
			Price:  quote.Price,
		}

		if err := s.repo.InsertTrade(ctx, userID, trade); err != nil {
			return err
		}

		return s.repo.AdjustCash(ctx, userID, cost.Neg())
	})

	if err != nil {
		if !errors.Is(err, service.ErrInsufficientFunds) {
			slog.Error("Buy transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return model.Trade{}, err
	}

	return trade, nil
}

// Sell mirrors Buy: the holdings check, the negated ledger row and the cash
// credit run in one transaction.
func (s *TradingService) Sell(ctx context.Context, userID int64, symbol string, shares int64) (trade model.Trade, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Sell"

	slog.Debug("Sell start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.Int64("shares", shares))
	defer func() {
		slog.Debug("Sell finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	if shares <= 0 {
		return model.Trade{}, service.ErrInvalidShares
	}

	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return model.Trade{}, err
	}

	proceeds := quote.Price.Mul(decimal.NewFromInt(shares))

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		owned, err := s.repo.GetShares(ctx, userID, quote.Symbol)
		if err != nil {
			return err
		}

		if shares > owned {
			return service.ErrInsufficientShares
		}

		trade = model.Trade{
			Symbol: quote.Symbol,
			Name:   quote.Name,
			Shares: -shares,
			Price:  quote.Price,
		}

		if err := s.repo.InsertTrade(ctx, userID, trade); err != nil {
			return err
		}

		return s.repo.AdjustCash(ctx, userID, proceeds)
	})

	if err != nil {
		if !errors.Is(err, service.ErrInsufficientShares) {
			slog.Error("Sell transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return model.Trade{}, err
	}

	return trade, nil
}

// GetPortfolio derives open positions from the ledger and values them at
// live prices. A position whose quote cannot be resolved keeps its last
// trade price and is flagged stale; the render never fails wholesale and
// nothing derived is persisted.
func (s *TradingService) GetPortfolio(ctx context.Context, userID int64) (portfolio model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.GetPortfolio"

	slog.Debug("GetPortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetPortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	cash, err := s.repo.GetCash(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetCash", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	positions, err := s.repo.GetPositions(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetPositions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	symbols := make([]string, 0, len(positions))
	for _, position := range positions {
		symbols = append(symbols, position.Symbol)
	}

	quotes := s.resolveQuotes(ctx, symbols)

	portfolio.Cash = cash
	portfolio.Holdings = make([]model.Holding, 0, len(positions))

	for _, position := range positions {
		holding := position

		quote, ok := quotes[position.Symbol]
		if ok {
			holding.Name = quote.Name
			holding.Price = quote.Price
		} else {
			// last trade price from the user's own ledger
			slog.Warn("no live quote for held symbol, using last trade price",
				slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", position.Symbol))
			holding.PriceStale = true
		}

		holding.Value = holding.Price.Mul(decimal.NewFromInt(holding.Shares))
		portfolio.StocksValue = portfolio.StocksValue.Add(holding.Value)
		portfolio.Holdings = append(portfolio.Holdings, holding)
	}

	portfolio.NetWorth = portfolio.Cash.Add(portfolio.StocksValue)

	return portfolio, nil
}

// resolveQuotes returns whatever quotes it can get for symbols: cache
// first, then the provider for the misses. Failures leave symbols out of
// the map; the caller decides the fallback.
func (s *TradingService) resolveQuotes(ctx context.Context, symbols []string) map[string]quoteModel.Quote {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.resolveQuotes"

	if len(symbols) == 0 {
		return map[string]quoteModel.Quote{}
	}

	quotes, err := s.cache.GetQuotes(ctx, symbols)
	if err != nil {
		slog.Warn("can't get quotes from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		quotes = map[string]quoteModel.Quote{}
	}

	missing := make([]string, 0)
	for _, symbol := range symbols {
		if _, ok := quotes[symbol]; !ok {
			missing = append(missing, symbol)
		}
	}

	if len(missing) == 0 {
		return quotes
	}

	fetched, err := s.quoteApi.GetQuotes(ctx, missing)
	if err != nil {
		slog.Error("can't get quotes from quoteApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return quotes
	}

	fresh := make([]quoteModel.Quote, 0, len(fetched))
	for symbol, quote := range fetched {
		quotes[symbol] = quote
		fresh = append(fresh, quote)
	}

	if len(fresh) > 0 {
		go s.cache.SetQuotes(context.WithoutCancel(ctx), fresh)
	}

	return quotes
}

func (s *TradingService) GetHistory(ctx context.Context, userID int64) (trades []model.Trade, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.GetHistory"

	slog.Debug("GetHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	trades, err = s.repo.GetTrades(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetTrades", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return trades, nil
}

func (s *TradingService) ExportHistory(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.ExportHistory"

	slog.Debug("ExportHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("ExportHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	trades, err := s.repo.GetTrades(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetTrades", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	return s.reports.Generate(ctx, trades)
}

// ResetAccount deletes the ledger and restores the starting balance in one
// transaction. The account itself survives.
func (s *TradingService) ResetAccount(ctx context.Context, userID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.ResetAccount"

	slog.Debug("ResetAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("ResetAccount finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.DeleteTrades(ctx, userID); err != nil {
			return err
		}
		return s.repo.SetCash(ctx, userID, s.startingCash)
	})

	if err != nil {
		slog.Error("ResetAccount transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// DeleteAccount removes the ledger and the user row in one transaction.
func (s *TradingService) DeleteAccount(ctx context.Context, userID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.DeleteAccount"

	slog.Debug("DeleteAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("DeleteAccount finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.DeleteTrades(ctx, userID); err != nil {
			return err
		}
		return s.repo.DeleteUser(ctx, userID)
	})

	if err != nil {
		slog.Error("DeleteAccount transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// WarmQuoteCache primes the quote cache for every held symbol. Runs as a
// scheduler job.
func (s *TradingService) WarmQuoteCache(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.WarmQuoteCache"

	symbols, err := s.repo.GetHeldSymbols(ctx)
	if err != nil {
		slog.Error("got error from repo.GetHeldSymbols", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if len(symbols) == 0 {
		return nil
	}

	quotes, err := s.quoteApi.GetQuotes(ctx, symbols)
	if err != nil {
		slog.Error("can't get quotes from quoteApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	fresh := make([]quoteModel.Quote, 0, len(quotes))
	for _, quote := range quotes {
		fresh = append(fresh, quote)
	}

	return s.cache.SetQuotes(ctx, fresh)
}
