package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/KotFed0t/paper_trading_web/config"
	"github.com/KotFed0t/paper_trading_web/data"
	"github.com/KotFed0t/paper_trading_web/data/cache"
	"github.com/KotFed0t/paper_trading_web/data/repository/postgres"
	"github.com/KotFed0t/paper_trading_web/data/session"
	"github.com/KotFed0t/paper_trading_web/internal/externalApi/quoteApi"
	"github.com/KotFed0t/paper_trading_web/internal/reportGenerator/xlsxGenerator"
	"github.com/KotFed0t/paper_trading_web/internal/scheduler"
	"github.com/KotFed0t/paper_trading_web/internal/service/tradingService"
	"github.com/KotFed0t/paper_trading_web/internal/transport/web"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	quoteApiClient := quoteApi.New(cfg)

	reportGenerator := xlsxGenerator.New()

	tradingSrv := tradingService.New(cfg, pgRepo, redisCache, quoteApiClient, reportGenerator)

	sched := scheduler.New()
	sched.NewIntervalJob("warm quote cache", tradingSrv.WarmQuoteCache, cfg.Jobs.WarmQuoteCacheInterval, true)
	sched.Start()
	defer sched.Stop()

	controller := web.NewController(cfg, tradingSrv, redisSession)
	router := web.NewRouter(cfg, controller, redisSession)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		slog.Info("http server starting", slog.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown failed", slog.String("err", err.Error()))
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
