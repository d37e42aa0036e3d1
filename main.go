// Package main library service API.
//
// @title           Library Service API
// @version         1.0
// @description     book borrowing service (books, borrowings, payments, fines).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/Liliyakhu/library-service-project/app/echoServer"
	authctrl "github.com/Liliyakhu/library-service-project/app/echoServer/controller/auth"
	bookctrl "github.com/Liliyakhu/library-service-project/app/echoServer/controller/book"
	borrowingctrl "github.com/Liliyakhu/library-service-project/app/echoServer/controller/borrowing"
	paymentctrl "github.com/Liliyakhu/library-service-project/app/echoServer/controller/payment"
	sweepctrl "github.com/Liliyakhu/library-service-project/app/echoServer/controller/sweep"
	"github.com/Liliyakhu/library-service-project/app/echoServer/validation"
	"github.com/Liliyakhu/library-service-project/config"
	bookrepo "github.com/Liliyakhu/library-service-project/repository/book"
	borrowrepo "github.com/Liliyakhu/library-service-project/repository/borrowing"
	paymentrepo "github.com/Liliyakhu/library-service-project/repository/payment"
	striperepo "github.com/Liliyakhu/library-service-project/repository/stripe"
	telegramrepo "github.com/Liliyakhu/library-service-project/repository/telegram"
	userrepo "github.com/Liliyakhu/library-service-project/repository/user"
	authsvc "github.com/Liliyakhu/library-service-project/service/auth"
	booksvc "github.com/Liliyakhu/library-service-project/service/book"
	borrowsvc "github.com/Liliyakhu/library-service-project/service/borrowing"
	paymentsvc "github.com/Liliyakhu/library-service-project/service/payment"
	sweepsvc "github.com/Liliyakhu/library-service-project/service/sweep"
	"github.com/Liliyakhu/library-service-project/util/clock"
	"github.com/Liliyakhu/library-service-project/util/database"
)

const (
	expirationSweepInterval = time.Minute
	overdueSweepInterval    = 24 * time.Hour
)

func main() {

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// one clock, one reference timezone, for every date comparison
	clk, err := clock.New(cfg.ReferenceTimezone)
	if err != nil {
		log.Error("bad reference timezone", "tz", cfg.ReferenceTimezone, "err", err)
		os.Exit(1)
	}

	fineMultiplier, err := decimal.NewFromString(cfg.FineMultiplier)
	if err != nil || !fineMultiplier.IsPositive() {
		log.Error("bad fine multiplier", "value", cfg.FineMultiplier)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ur := userrepo.New(db)
	bkr := bookrepo.New(db)
	br := borrowrepo.New(db, bkr)
	pr := paymentrepo.New(db)
	sp := striperepo.NewHTTP(cfg.StripeAPIKey, cfg.StripeWebhookSecret)
	tg := telegramrepo.NewHTTP(cfg.TelegramBotToken, cfg.TelegramChatID, log)

	successURL := cfg.PaymentSuccessURL
	if successURL == "" {
		successURL = "http://localhost:" + cfg.Port + "/v1/payments/success"
	}
	cancelURL := cfg.PaymentCancelURL
	if cancelURL == "" {
		cancelURL = "http://localhost:" + cfg.Port + "/v1/payments/cancel"
	}

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(bkr)
	ps := paymentsvc.New(pr, br, sp, clk, log,
		fineMultiplier,
		time.Duration(cfg.SessionExpiryHours)*time.Hour,
		successURL, cancelURL,
	)
	rs := borrowsvc.New(br, bkr, pr, ps, clk, cfg.MaxBorrowDays, fineMultiplier)
	ss := sweepsvc.New(pr, br, sp, tg, ps, clk, log)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowingC := &borrowingctrl.Controller{Svc: rs, V: v, Log: log}
	paymentC := &paymentctrl.Controller{Svc: ps, V: v, Log: log}
	sweepC := &sweepctrl.Controller{Svc: ss, Log: log}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowingC,
		Payment:   paymentC,
		Sweep:     sweepC,

		JWTSecret: cfg.JWTSecret,
	})

	// background sweeps
	go runExpirationSweeps(ctx, ss, log)
	go runOverdueSweeps(ctx, ss, log)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "err", err)
		}
	}()

	log.Info("starting server", "port", port)
	if err := e.Start(":" + port); err != nil {
		log.Info("server stopped", "reason", err)
	}
}

func runExpirationSweeps(ctx context.Context, ss sweepsvc.Service, log *slog.Logger) {
	t := time.NewTicker(expirationSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := ss.RunExpireSessions(ctx); err != nil {
				log.Error("expiration sweep gave up", "err", err)
			}
		}
	}
}

func runOverdueSweeps(ctx context.Context, ss sweepsvc.Service, log *slog.Logger) {
	t := time.NewTicker(overdueSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := ss.RunNotifyOverdue(ctx); err != nil {
				log.Error("overdue sweep gave up", "err", err)
			}
			if _, err := ss.RunCreateOverdueFines(ctx); err != nil {
				log.Error("fine sweep gave up", "err", err)
			}
			if _, err := ss.CleanupExpiredPayments(ctx); err != nil {
				log.Error("expired payment cleanup failed", "err", err)
			}
		}
	}
}
