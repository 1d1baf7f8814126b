package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/KotFed0t/paper_trading_web/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const SessionCookie = "session_token"

type Session interface {
	GetUserID(ctx context.Context, token string) (int64, error)
}

// RequestLogger assigns every request an rqID, threads it through the
// request context and logs start/finish with duration.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()

		rqID := uuid.NewString()
		ctx := utils.CtxWithRqID(c.Request.Context(), rqID)
		c.Request = c.Request.WithContext(ctx)

		slog.Info(
			"start request",
			slog.String("rqID", rqID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)

		defer func() {
			slog.Info(
				"request finished",
				slog.String("rqID", rqID),
				slog.Int("status", c.Writer.Status()),
				slog.String("request duration", fmt.Sprintf("%.2fs", time.Since(now).Seconds())),
			)
		}()

		c.Next()
	}
}

// NoCache forbids caching of rendered pages.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Expires", "0")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

// Auth resolves the session cookie to a user id and puts it into the
// request context. Requests without a live session are redirected to the
// login page before any handler runs.
func Auth(session Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		rqID := utils.GetRequestIDFromCtx(c.Request.Context())

		token, err := c.Cookie(SessionCookie)
		if err != nil {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}

		userID, err := session.GetUserID(c.Request.Context(), token)
		if err != nil {
			slog.Debug("session not resolved, redirecting to login", slog.String("rqID", rqID))
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}

		ctx := utils.CtxWithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
