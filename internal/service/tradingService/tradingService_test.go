package tradingService

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/paper_trading_web/config"
	"github.com/KotFed0t/paper_trading_web/data/repository"
	"github.com/KotFed0t/paper_trading_web/internal/externalApi"
	"github.com/KotFed0t/paper_trading_web/internal/model"
	"github.com/KotFed0t/paper_trading_web/internal/model/quoteModel"
	"github.com/KotFed0t/paper_trading_web/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// -------- test fakes --------

type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	users   map[string]model.User           // by username
	cash    map[int64]decimal.Decimal       // by user id
	trades  map[int64][]model.Trade         // by user id
	txCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  map[string]model.User{},
		cash:   map[int64]decimal.Decimal{},
		trades: map[int64][]model.Trade{},
	}
}

func (f *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	f.mu.Lock()
	f.txCalls++
	f.mu.Unlock()
	return tFunc(ctx)
}

func (f *fakeRepo) InsertUser(ctx context.Context, username, passHash string, cash decimal.Decimal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[username]; ok {
		return 0, repository.ErrAlreadyExists
	}

	f.nextID++
	f.users[username] = model.User{ID: f.nextID, Username: username, PassHash: passHash, Cash: cash}
	f.cash[f.nextID] = cash
	return f.nextID, nil
}

func (f *fakeRepo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[username]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeRepo) GetCash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cash, ok := f.cash[userID]
	if !ok {
		return decimal.Decimal{}, repository.ErrNotFound
	}
	return cash, nil
}

func (f *fakeRepo) AdjustCash(ctx context.Context, userID int64, delta decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cash, ok := f.cash[userID]
	if !ok {
		return repository.ErrNotFound
	}
	f.cash[userID] = cash.Add(delta)
	return nil
}

func (f *fakeRepo) SetCash(ctx context.Context, userID int64, cash decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cash[userID]; !ok {
		return repository.ErrNotFound
	}
	f.cash[userID] = cash
	return nil
}

func (f *fakeRepo) DeleteUser(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for username, user := range f.users {
		if user.ID == userID {
			delete(f.users, username)
			delete(f.cash, userID)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeRepo) InsertTrade(ctx context.Context, userID int64, trade model.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	trade.CreatedAt = time.Now()
	f.trades[userID] = append(f.trades[userID], trade)
	return nil
}

func (f *fakeRepo) GetShares(ctx context.Context, userID int64, symbol string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var shares int64
	for _, trade := range f.trades[userID] {
		if trade.Symbol == symbol {
			shares += trade.Shares
		}
	}
	return shares, nil
}

func (f *fakeRepo) GetPositions(ctx context.Context, userID int64) ([]model.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type agg struct {
		shares    int64
		name      string
		lastPrice decimal.Decimal
	}

	bySymbol := map[string]*agg{}
	order := make([]string, 0)
	for _, trade := range f.trades[userID] {
		a, ok := bySymbol[trade.Symbol]
		if !ok {
			a = &agg{}
			bySymbol[trade.Symbol] = a
			order = append(order, trade.Symbol)
		}
		a.shares += trade.Shares
		a.name = trade.Name
		a.lastPrice = trade.Price
	}

	positions := make([]model.Holding, 0)
	for _, symbol := range order {
		a := bySymbol[symbol]
		if a.shares <= 0 {
			continue
		}
		positions = append(positions, model.Holding{
			Symbol: symbol,
			Name:   a.name,
			Shares: a.shares,
			Price:  a.lastPrice,
		})
	}
	return positions, nil
}

func (f *fakeRepo) GetTrades(ctx context.Context, userID int64) ([]model.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	trades := make([]model.Trade, len(f.trades[userID]))
	copy(trades, f.trades[userID])
	return trades, nil
}

func (f *fakeRepo) DeleteTrades(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.trades, userID)
	return nil
}

func (f *fakeRepo) GetHeldSymbols(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	shares := map[string]int64{}
	order := make([]string, 0)
	for _, trades := range f.trades {
		for _, trade := range trades {
			if _, ok := shares[trade.Symbol]; !ok {
				order = append(order, trade.Symbol)
			}
			shares[trade.Symbol] += trade.Shares
		}
	}

	symbols := make([]string, 0)
	for _, symbol := range order {
		if shares[symbol] > 0 {
			symbols = append(symbols, symbol)
		}
	}
	return symbols, nil
}

type fakeCache struct {
	mu     sync.Mutex
	quotes map[string]quoteModel.Quote
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{quotes: map[string]quoteModel.Quote{}}
}

func (f *fakeCache) GetQuote(ctx context.Context, symbol string) (quoteModel.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return quoteModel.Quote{}, f.getErr
	}

	quote, ok := f.quotes[symbol]
	if !ok {
		return quoteModel.Quote{}, errors.New("not found in cache")
	}
	return quote, nil
}

func (f *fakeCache) GetQuotes(ctx context.Context, symbols []string) (map[string]quoteModel.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	res := map[string]quoteModel.Quote{}
	for _, symbol := range symbols {
		if quote, ok := f.quotes[symbol]; ok {
			res[symbol] = quote
		}
	}
	return res, nil
}

func (f *fakeCache) SetQuote(ctx context.Context, quote quoteModel.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.quotes[quote.Symbol] = quote
	return nil
}

func (f *fakeCache) SetQuotes(ctx context.Context, quotes []quoteModel.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, quote := range quotes {
		f.quotes[quote.Symbol] = quote
	}
	return nil
}

type fakeQuoteApi struct {
	mu     sync.Mutex
	quotes map[string]quoteModel.Quote
	down   bool
	calls  int
}

func newFakeQuoteApi(quotes ...quoteModel.Quote) *fakeQuoteApi {
	f := &fakeQuoteApi{quotes: map[string]quoteModel.Quote{}}
	for _, quote := range quotes {
		f.quotes[quote.Symbol] = quote
	}
	return f
}

func (f *fakeQuoteApi) GetQuote(ctx context.Context, symbol string) (quoteModel.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.down {
		return quoteModel.Quote{}, externalApi.ErrUnavailable
	}

	quote, ok := f.quotes[symbol]
	if !ok {
		return quoteModel.Quote{}, externalApi.ErrNotFound
	}
	return quote, nil
}

func (f *fakeQuoteApi) GetQuotes(ctx context.Context, symbols []string) (map[string]quoteModel.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.down {
		return nil, externalApi.ErrUnavailable
	}

	res := map[string]quoteModel.Quote{}
	for _, symbol := range symbols {
		if quote, ok := f.quotes[symbol]; ok {
			res[symbol] = quote
		}
	}
	return res, nil
}

type fakeReports struct{}

func (f *fakeReports) Generate(ctx context.Context, trades []model.Trade) ([]byte, string, error) {
	return []byte("xlsx"), ".xlsx", nil
}

// -------- helpers --------

func testConfig() *config.Config {
	return &config.Config{StartingCash: "10000.00"}
}

func newService(repo *fakeRepo, cache *fakeCache, api *fakeQuoteApi) *TradingService {
	return New(testConfig(), repo, cache, api, &fakeReports{})
}

func registerUser(t *testing.T, srv *TradingService) int64 {
	t.Helper()
	userID, err := srv.Register(context.Background(), "alice", "secret", "secret")
	require.NoError(t, err)
	return userID
}

func quote(symbol, name, price string) quoteModel.Quote {
	return quoteModel.Quote{Symbol: symbol, Name: name, Price: decimal.RequireFromString(price)}
}

// -------- tests --------

func TestRegister(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi())

	userID, err := srv.Register(context.Background(), "alice", "secret", "secret")
	require.NoError(t, err)
	require.NotZero(t, userID)

	cash, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.RequireFromString("10000.00")))

	user, err := repo.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", user.PassHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte("secret")))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi())

	_, err := srv.Register(context.Background(), "alice", "secret", "secret")
	require.NoError(t, err)

	originalHash := repo.users["alice"].PassHash

	_, err = srv.Register(context.Background(), "alice", "other", "other")
	assert.ErrorIs(t, err, service.ErrUserAlreadyExists)

	// original credential untouched, no extra rows
	assert.Equal(t, originalHash, repo.users["alice"].PassHash)
	assert.Len(t, repo.users, 1)
}

func TestRegisterValidation(t *testing.T) {
	srv := newService(newFakeRepo(), newFakeCache(), newFakeQuoteApi())

	_, err := srv.Register(context.Background(), "alice", "secret", "different")
	assert.ErrorIs(t, err, service.ErrPasswordMismatch)

	_, err = srv.Register(context.Background(), "", "secret", "secret")
	assert.ErrorIs(t, err, service.ErrEmptyField)

	_, err = srv.Register(context.Background(), "alice", "", "")
	assert.ErrorIs(t, err, service.ErrEmptyField)
}

func TestLogin(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi())
	userID := registerUser(t, srv)

	gotID, err := srv.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)

	_, err = srv.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, service.ErrWrongCredentials)

	_, err = srv.Login(context.Background(), "nobody", "secret")
	assert.ErrorIs(t, err, service.ErrWrongCredentials)
}

func TestGetQuote(t *testing.T) {
	cache := newFakeCache()
	api := newFakeQuoteApi(quote("NFLX", "Netflix", "100.00"))
	srv := newService(newFakeRepo(), cache, api)

	got, err := srv.GetQuote(context.Background(), "NFLX")
	require.NoError(t, err)
	assert.Equal(t, "NFLX", got.Symbol)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("100.00")))

	_, err = srv.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestGetQuoteCacheHitSkipsProvider(t *testing.T) {
	cache := newFakeCache()
	require.NoError(t, cache.SetQuote(context.Background(), quote("NFLX", "Netflix", "100.00")))

	api := newFakeQuoteApi()
	api.down = true

	srv := newService(newFakeRepo(), cache, api)

	got, err := srv.GetQuote(context.Background(), "NFLX")
	require.NoError(t, err)
	assert.Equal(t, "Netflix", got.Name)
	assert.Zero(t, api.calls)
}

func TestGetQuoteProviderDown(t *testing.T) {
	api := newFakeQuoteApi(quote("NFLX", "Netflix", "100.00"))
	api.down = true
	srv := newService(newFakeRepo(), newFakeCache(), api)

	_, err := srv.GetQuote(context.Background(), "NFLX")
	assert.ErrorIs(t, err, service.ErrQuoteUnavailable)
}

func TestBuy(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi(quote("NFLX", "Netflix", "100.00")))
	userID := registerUser(t, srv)

	trade, err := srv.Buy(context.Background(), userID, "NFLX", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trade.Shares)
	assert.True(t, trade.Price.Equal(decimal.RequireFromString("100.00")))

	cash, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.RequireFromString("9900.00")), "cash = %s", cash)

	trades, err := repo.GetTrades(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1), trades[0].Shares)
	assert.Equal(t, 1, repo.txCalls)
}

func TestBuyInsufficientFunds(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi(quote("NFLX", "Netflix", "100.00")))
	userID := registerUser(t, srv)

	_, err := srv.Buy(context.Background(), userID, "NFLX", 101)
	assert.ErrorIs(t, err, service.ErrInsufficientFunds)

	cash, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.RequireFromString("10000.00")))

	trades, err := repo.GetTrades(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestBuyValidation(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi(quote("NFLX", "Netflix", "100.00")))
	userID := registerUser(t, srv)

	_, err := srv.Buy(context.Background(), userID, "NFLX", 0)
	assert.ErrorIs(t, err, service.ErrInvalidShares)

	_, err = srv.Buy(context.Background(), userID, "NFLX", -3)
	assert.ErrorIs(t, err, service.ErrInvalidShares)

	_, err = srv.Buy(context.Background(), userID, "NOPE", 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestSellInsufficientShares(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi(quote("AAA", "Triple A", "10.00")))
	userID := registerUser(t, srv)

	_, err := srv.Buy(context.Background(), userID, "AAA", 5)
	require.NoError(t, err)

	cashBefore, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)

	_, err = srv.Sell(context.Background(), userID, "AAA", 10)
	assert.ErrorIs(t, err, service.ErrInsufficientShares)

	cashAfter, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cashAfter.Equal(cashBefore))

	trades, err := repo.GetTrades(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestBuySellRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi(quote("AAA", "Triple A", "10.00")))
	userID := registerUser(t, srv)

	cashBefore, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)

	_, err = srv.Buy(context.Background(), userID, "AAA", 5)
	require.NoError(t, err)

	sellTrade, err := srv.Sell(context.Background(), userID, "AAA", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), sellTrade.Shares)

	cashAfter, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cashAfter.Equal(cashBefore), "cash = %s", cashAfter)

	portfolio, err := srv.GetPortfolio(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, portfolio.Holdings)
	assert.True(t, portfolio.NetWorth.Equal(cashBefore))
}

func TestGetPortfolio(t *testing.T) {
	repo := newFakeRepo()
	api := newFakeQuoteApi(quote("AAA", "Triple A", "10.00"), quote("BBB", "Double B", "20.00"))
	srv := newService(repo, newFakeCache(), api)
	userID := registerUser(t, srv)

	_, err := srv.Buy(context.Background(), userID, "AAA", 5)
	require.NoError(t, err)
	_, err = srv.Buy(context.Background(), userID, "BBB", 2)
	require.NoError(t, err)

	portfolio, err := srv.GetPortfolio(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, portfolio.Holdings, 2)
	assert.True(t, portfolio.StocksValue.Equal(decimal.RequireFromString("90.00")), "stocks value = %s", portfolio.StocksValue)
	assert.True(t, portfolio.Cash.Equal(decimal.RequireFromString("9910.00")))
	assert.True(t, portfolio.NetWorth.Equal(decimal.RequireFromString("10000.00")))

	// re-render without trades and with unchanged quotes yields the same net worth
	again, err := srv.GetPortfolio(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, again.NetWorth.Equal(portfolio.NetWorth))
}

func TestGetPortfolioQuoteFailureFallsBackToLastTradePrice(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	api := newFakeQuoteApi(quote("AAA", "Triple A", "10.00"))
	srv := newService(repo, cache, api)
	userID := registerUser(t, srv)

	_, err := srv.Buy(context.Background(), userID, "AAA", 5)
	require.NoError(t, err)

	// both quote sources are gone: value must fall back to the ledger price
	api.mu.Lock()
	api.down = true
	api.mu.Unlock()
	cache.mu.Lock()
	cache.getErr = errors.New("cache down")
	cache.mu.Unlock()

	portfolio, err := srv.GetPortfolio(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, portfolio.Holdings, 1)
	holding := portfolio.Holdings[0]
	assert.True(t, holding.PriceStale)
	assert.True(t, holding.Price.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, holding.Value.Equal(decimal.RequireFromString("50.00")))
}

func TestResetAccount(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi(quote("AAA", "Triple A", "1000.00")))
	userID := registerUser(t, srv)

	_, err := srv.Buy(context.Background(), userID, "AAA", 5)
	require.NoError(t, err)

	require.NoError(t, srv.ResetAccount(context.Background(), userID))

	cash, err := repo.GetCash(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.RequireFromString("10000.00")))

	trades, err := repo.GetTrades(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestDeleteAccount(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi())
	userID := registerUser(t, srv)

	require.NoError(t, srv.DeleteAccount(context.Background(), userID))

	_, err := repo.GetUserByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	trades, err := repo.GetTrades(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestWarmQuoteCache(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	api := newFakeQuoteApi(quote("AAA", "Triple A", "10.00"))
	srv := newService(repo, cache, api)
	userID := registerUser(t, srv)

	_, err := srv.Buy(context.Background(), userID, "AAA", 5)
	require.NoError(t, err)

	require.NoError(t, srv.WarmQuoteCache(context.Background()))

	cached, err := cache.GetQuote(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, "Triple A", cached.Name)
}

func TestExportHistory(t *testing.T) {
	repo := newFakeRepo()
	srv := newService(repo, newFakeCache(), newFakeQuoteApi())
	userID := registerUser(t, srv)

	fileBytes, fileExtension, err := srv.ExportHistory(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", fileExtension)
	assert.NotEmpty(t, fileBytes)
}
