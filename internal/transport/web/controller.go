package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/paper_trading_web/config"
	"github.com/KotFed0t/paper_trading_web/internal/model"
	"github.com/KotFed0t/paper_trading_web/internal/model/quoteModel"
	"github.com/KotFed0t/paper_trading_web/internal/service"
	"github.com/KotFed0t/paper_trading_web/internal/transport/web/middleware"
	"github.com/KotFed0t/paper_trading_web/utils"
	"github.com/gin-gonic/gin"
)

type TradingService interface {
	Register(ctx context.Context, username, password, confirmation string) (int64, error)
	Login(ctx context.Context, username, password string) (int64, error)
	GetQuote(ctx context.Context, symbol string) (quoteModel.Quote, error)
	Buy(ctx context.Context, userID int64, symbol string, shares int64) (model.Trade, error)
	Sell(ctx context.Context, userID int64, symbol string, shares int64) (model.Trade, error)
	GetPortfolio(ctx context.Context, userID int64) (model.Portfolio, error)
	GetHistory(ctx context.Context, userID int64) ([]model.Trade, error)
	ExportHistory(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error)
	ResetAccount(ctx context.Context, userID int64) error
	DeleteAccount(ctx context.Context, userID int64) error
}

type Session interface {
	Create(ctx context.Context, userID int64) (token string, err error)
	Delete(ctx context.Context, token string) error
}

type Controller struct {
	cfg            *config.Config
	tradingService TradingService
	session        Session
}

func NewController(cfg *config.Config, tradingService TradingService, session Session) *Controller {
	return &Controller{
		cfg:            cfg,
		tradingService: tradingService,
		session:        session,
	}
}

// apology renders the error page the same way every rejected operation is
// reported to the user.
func (ctrl *Controller) apology(c *gin.Context, status int, message string) {
	c.HTML(status, "apology.html", gin.H{
		"Code":    status,
		"Message": message,
	})
	c.Abort()
}

// apologyForErr maps service sentinels to user-visible rejections; anything
// unknown becomes a generic 500 without internal detail.
func (ctrl *Controller) apologyForErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		ctrl.apology(c, http.StatusBadRequest, "stock symbol not found")
	case errors.Is(err, service.ErrQuoteUnavailable):
		ctrl.apology(c, http.StatusServiceUnavailable, "quote service is unavailable, try again later")
	case errors.Is(err, service.ErrInvalidShares):
		ctrl.apology(c, http.StatusBadRequest, "number of shares must be a positive integer")
	case errors.Is(err, service.ErrInsufficientFunds):
		ctrl.apology(c, http.StatusBadRequest, "insufficient funds for this purchase")
	case errors.Is(err, service.ErrInsufficientShares):
		ctrl.apology(c, http.StatusBadRequest, "insufficient stock for this sale")
	case errors.Is(err, service.ErrUserAlreadyExists):
		ctrl.apology(c, http.StatusBadRequest, "account name taken")
	case errors.Is(err, service.ErrPasswordMismatch):
		ctrl.apology(c, http.StatusBadRequest, "passwords do not match")
	case errors.Is(err, service.ErrEmptyField):
		ctrl.apology(c, http.StatusBadRequest, "please fill in all fields")
	case errors.Is(err, service.ErrWrongCredentials):
		ctrl.apology(c, http.StatusForbidden, "invalid username and/or password")
	default:
		ctrl.apology(c, http.StatusInternalServerError, "something went wrong")
	}
}

func (ctrl *Controller) userID(c *gin.Context) (int64, bool) {
	userID, err := utils.GetUserIDFromCtx(c.Request.Context())
	if err != nil {
		rqID := utils.GetRequestIDFromCtx(c.Request.Context())
		slog.Error("no user id in authenticated request", slog.String("rqID", rqID))
		ctrl.apology(c, http.StatusInternalServerError, "something went wrong")
		return 0, false
	}
	return userID, true
}

func parseShares(raw string) (int64, error) {
	shares, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || shares <= 0 {
		return 0, service.ErrInvalidShares
	}
	return shares, nil
}

func (ctrl *Controller) setSessionCookie(c *gin.Context, token string) {
	c.SetCookie(middleware.SessionCookie, token, int(ctrl.cfg.SessionExpiration.Seconds()), "/", "", false, true)
}

func (ctrl *Controller) clearSessionCookie(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
}

// Index renders the holdings with net worth.
func (ctrl *Controller) Index(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	portfolio, err := ctrl.tradingService.GetPortfolio(c.Request.Context(), userID)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Portfolio": portfolio,
	})
}

func (ctrl *Controller) BuyPage(c *gin.Context) {
	c.HTML(http.StatusOK, "buy.html", nil)
}

func (ctrl *Controller) Buy(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	shares, err := parseShares(c.PostForm("shares"))
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	_, err = ctrl.tradingService.Buy(c.Request.Context(), userID, c.PostForm("symbol"), shares)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (ctrl *Controller) SellPage(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	portfolio, err := ctrl.tradingService.GetPortfolio(c.Request.Context(), userID)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	symbols := make([]string, 0, len(portfolio.Holdings))
	for _, holding := range portfolio.Holdings {
		symbols = append(symbols, holding.Symbol)
	}

	c.HTML(http.StatusOK, "sell.html", gin.H{
		"Symbols": symbols,
	})
}

func (ctrl *Controller) Sell(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	shares, err := parseShares(c.PostForm("shares"))
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	_, err = ctrl.tradingService.Sell(c.Request.Context(), userID, c.PostForm("symbol"), shares)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (ctrl *Controller) QuotePage(c *gin.Context) {
	c.HTML(http.StatusOK, "quote.html", nil)
}

func (ctrl *Controller) Quote(c *gin.Context) {
	quote, err := ctrl.tradingService.GetQuote(c.Request.Context(), c.PostForm("symbol"))
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	c.HTML(http.StatusOK, "quoted.html", gin.H{
		"Quote": quote,
	})
}

func (ctrl *Controller) History(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	trades, err := ctrl.tradingService.GetHistory(c.Request.Context(), userID)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	c.HTML(http.StatusOK, "history.html", gin.H{
		"Trades": trades,
	})
}

func (ctrl *Controller) HistoryExport(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	fileBytes, fileExtension, err := ctrl.tradingService.ExportHistory(c.Request.Context(), userID)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	fileName := fmt.Sprintf("history_%s%s", time.Now().Format("20060102_150405"), fileExtension)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", fileBytes)
}

func (ctrl *Controller) AccountPage(c *gin.Context) {
	c.HTML(http.StatusOK, "account.html", nil)
}

func (ctrl *Controller) Account(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	switch c.PostForm("account") {
	case "reset":
		if err := ctrl.tradingService.ResetAccount(c.Request.Context(), userID); err != nil {
			ctrl.apologyForErr(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	case "delete":
		if err := ctrl.tradingService.DeleteAccount(c.Request.Context(), userID); err != nil {
			ctrl.apologyForErr(c, err)
			return
		}
		ctrl.endSession(c)
		c.Redirect(http.StatusSeeOther, "/")
	default:
		ctrl.apology(c, http.StatusBadRequest, "unknown account action")
	}
}

func (ctrl *Controller) RegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", nil)
}

func (ctrl *Controller) Register(c *gin.Context) {
	userID, err := ctrl.tradingService.Register(
		c.Request.Context(),
		strings.TrimSpace(c.PostForm("username")),
		c.PostForm("password"),
		c.PostForm("confirmation"),
	)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	ctrl.startSession(c, userID)
}

func (ctrl *Controller) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", nil)
}

func (ctrl *Controller) Login(c *gin.Context) {
	userID, err := ctrl.tradingService.Login(
		c.Request.Context(),
		strings.TrimSpace(c.PostForm("username")),
		c.PostForm("password"),
	)
	if err != nil {
		ctrl.apologyForErr(c, err)
		return
	}

	ctrl.startSession(c, userID)
}

func (ctrl *Controller) Logout(c *gin.Context) {
	ctrl.endSession(c)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (ctrl *Controller) startSession(c *gin.Context, userID int64) {
	rqID := utils.GetRequestIDFromCtx(c.Request.Context())

	token, err := ctrl.session.Create(c.Request.Context(), userID)
	if err != nil {
		slog.Error("got error from session.Create", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, "something went wrong")
		return
	}

	ctrl.setSessionCookie(c, token)
	c.Redirect(http.StatusSeeOther, "/")
}

// endSession clears the session binding unconditionally: a missing or
// already-expired cookie is not an error.
func (ctrl *Controller) endSession(c *gin.Context) {
	rqID := utils.GetRequestIDFromCtx(c.Request.Context())

	token, err := c.Cookie(middleware.SessionCookie)
	if err == nil && token != "" {
		if err := ctrl.session.Delete(c.Request.Context(), token); err != nil {
			slog.Error("got error from session.Delete", slog.String("rqID", rqID), slog.String("err", err.Error()))
		}
	}

	ctrl.clearSessionCookie(c)
}
