package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/covu-ng/covu-core/internal/alerts"
	"github.com/covu-ng/covu-core/internal/config"
	"github.com/covu-ng/covu-core/internal/db"
	"github.com/covu-ng/covu-core/internal/escrow"
	"github.com/covu-ng/covu-core/internal/gateway"
	"github.com/covu-ng/covu-core/internal/ledger"
	"github.com/covu-ng/covu-core/internal/marketplace"
	mware "github.com/covu-ng/covu-core/internal/middleware"
	"github.com/covu-ng/covu-core/internal/order"
	"github.com/covu-ng/covu-core/internal/store"
	"github.com/covu-ng/covu-core/internal/wallet"
	"github.com/covu-ng/covu-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("config invalid")
	}
	log := logger.NewWithConfig(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}

	st := store.NewPostgres(pool)
	mut := ledger.NewMutator(st, log)
	esc := escrow.NewEngine(st, mut, log)

	queue := alerts.NewQueue(cfg.RedisAddr, log)
	defer queue.Close()
	processor := alerts.NewProcessor(cfg.RedisAddr, alerts.NewMailer(alerts.MailerConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}), log)
	processor.Start()
	defer processor.Shutdown()

	paystack := gateway.NewPaystack(cfg.PaystackSecret, cfg.PaystackURL)
	orders := order.NewService(st, esc, queue, order.DefaultCancelPolicy(), log)
	wallets := wallet.NewService(st, mut, paystack, queue, cfg.CallbackURL, log)

	sched := order.NewScheduler(orders, cfg.SweepInterval, cfg.ReleaseGrace, log)
	go sched.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	walletHandler := wallet.NewHandler(wallets, cfg.PaystackSecret, log)
	walletHandler.RegisterPublic(e, mware.JWTOptional(cfg.JWTSecret))

	api := e.Group("")
	api.Use(mware.JWT(cfg.JWTSecret))
	walletHandler.Register(api.Group("/wallet"))
	marketplace.NewHandler(orders, log).Register(api.Group("/marketplace"))

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("server started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
