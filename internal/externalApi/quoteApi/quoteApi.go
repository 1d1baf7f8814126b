package quoteApi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/KotFed0t/paper_trading_web/config"
	"github.com/KotFed0t/paper_trading_web/internal/externalApi"
	"github.com/KotFed0t/paper_trading_web/internal/model/quoteModel"
	"github.com/KotFed0t/paper_trading_web/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// QuoteApi fetches live quotes from an IEX-style REST provider:
// GET /stable/stock/{symbol}/quote?token=... returning symbol,
// companyName and latestPrice. 404 means unknown symbol; any other
// failure is a provider outage and reported as such.
type QuoteApi struct {
	client *resty.Client
	token  string
}

func New(cfg *config.Config) *QuoteApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.QuoteApi.Url)
	return &QuoteApi{client: client, token: cfg.API.QuoteApi.Token}
}

func (a *QuoteApi) GetQuote(ctx context.Context, symbol string) (quoteModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := "/stable/stock/{symbol}/quote"

	slog.Debug("start QuoteApi.GetQuote request", slog.String("rqID", rqID), slog.String("symbol", symbol))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetPathParam("symbol", strings.ToUpper(symbol)).
		SetQueryParam("token", a.token).
		Get(url)

	if err != nil {
		slog.Error("error while dialing QuoteApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return quoteModel.Quote{}, externalApi.ErrUnavailable
	}

	if resp.StatusCode() == http.StatusNotFound {
		slog.Warn("symbol not found in QuoteApi", slog.String("rqID", rqID), slog.String("symbol", symbol))
		return quoteModel.Quote{}, externalApi.ErrNotFound
	}

	if resp.IsError() {
		slog.Error(
			"QuoteApi returned error status",
			slog.String("rqID", rqID),
			slog.Int("status", resp.StatusCode()),
			slog.String("body", string(resp.Body())),
		)
		return quoteModel.Quote{}, externalApi.ErrUnavailable
	}

	rawQuote := quoteModel.RawQuote{}
	err = json.Unmarshal(resp.Body(), &rawQuote)
	if err != nil {
		slog.Error("can't unmarshall response into quoteModel.RawQuote", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return quoteModel.Quote{}, externalApi.ErrUnavailable
	}

	quote, err := a.parseRawQuote(rawQuote)
	if err != nil {
		slog.Error("can't parse raw quote", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return quoteModel.Quote{}, externalApi.ErrUnavailable
	}

	slog.Debug("QuoteApi.GetQuote request complete", slog.String("rqID", rqID))

	return quote, nil
}

// GetQuotes resolves several symbols. Symbols the provider does not know
// are absent from the result map; a provider outage fails the whole call.
func (a *QuoteApi) GetQuotes(ctx context.Context, symbols []string) (map[string]quoteModel.Quote, error) {
	res := make(map[string]quoteModel.Quote, len(symbols))

	for _, symbol := range symbols {
		quote, err := a.GetQuote(ctx, symbol)
		if err != nil {
			if errors.Is(err, externalApi.ErrNotFound) {
				continue
			}
			return nil, err
		}
		res[quote.Symbol] = quote
	}

	return res, nil
}

func (a *QuoteApi) parseRawQuote(rawQuote quoteModel.RawQuote) (quoteModel.Quote, error) {
	if rawQuote.Symbol == "" {
		return quoteModel.Quote{}, externalApi.ErrNotFound
	}

	price := decimal.NewFromFloat(rawQuote.LatestPrice)

	return quoteModel.Quote{
		Symbol: rawQuote.Symbol,
		Name:   rawQuote.CompanyName,
		Price:  price,
	}, nil
}
