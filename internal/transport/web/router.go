package web

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/KotFed0t/paper_trading_web/config"
	"github.com/KotFed0t/paper_trading_web/internal/transport/web/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// usd formats a decimal amount as US dollars with thousands separators.
func usd(value decimal.Decimal) string {
	fixed := value.StringFixed(2)

	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	res := "$" + b.String() + "." + fracPart
	if negative {
		res = "-" + res
	}
	return res
}

func NewRouter(cfg *config.Config, ctrl *Controller, session middleware.Session) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(
		middleware.RequestLogger(),
		middleware.NoCache(),
		gin.CustomRecovery(func(c *gin.Context, _ any) {
			ctrl.apology(c, http.StatusInternalServerError, "something went wrong")
		}),
	)

	router.SetFuncMap(template.FuncMap{"usd": usd})
	router.LoadHTMLGlob(cfg.HTTP.TemplatesGlob)

	router.GET("/register", ctrl.RegisterPage)
	router.POST("/register", ctrl.Register)
	router.GET("/login", ctrl.LoginPage)
	router.POST("/login", ctrl.Login)
	router.GET("/logout", ctrl.Logout)

	authorized := router.Group("/")
	authorized.Use(middleware.Auth(session))
	{
		authorized.GET("/", ctrl.Index)
		authorized.GET("/buy", ctrl.BuyPage)
		authorized.POST("/buy", ctrl.Buy)
		authorized.GET("/sell", ctrl.SellPage)
		authorized.POST("/sell", ctrl.Sell)
		authorized.GET("/quote", ctrl.QuotePage)
		authorized.POST("/quote", ctrl.Quote)
		authorized.GET("/history", ctrl.History)
		authorized.GET("/history/export", ctrl.HistoryExport)
		authorized.GET("/account", ctrl.AccountPage)
		authorized.POST("/account", ctrl.Account)
	}

	return router
}
