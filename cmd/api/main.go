package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/promptshop/backend/api/routes"
	"github.com/promptshop/backend/internal/orders"
	"github.com/promptshop/backend/internal/payments"
	"github.com/promptshop/backend/internal/slip"
	"github.com/promptshop/backend/pkg/config"
	"github.com/promptshop/backend/pkg/db"
	"github.com/promptshop/backend/pkg/logger"
	"github.com/promptshop/backend/pkg/metrics"
	"github.com/promptshop/backend/pkg/migrate"
	"github.com/promptshop/backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	verificationMetrics := metrics.NewSlipVerificationMetrics(registry)

	paymentsRepo := payments.NewRepository(dbClient.DB())

	engine, err := slip.NewEngine(slip.EngineParams{
		Logger:     logg,
		Fetcher:    slip.NewFetcher(cfg.Slip.FetchTimeout, cfg.Slip.MaxImageBytes),
		Normalizer: slip.NewNormalizer(cfg.Slip.TempDir),
		Scanner:    slip.NewScanner(),
		Recognizer: slip.NewTesseractRecognizer(cfg.Slip.OCRLanguages),
		Orders:     payments.NewOrderLookup(paymentsRepo),
		Metrics:    verificationMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create slip engine", err)
		os.Exit(1)
	}

	verifyLock, err := payments.NewVerifyLock(redisClient, cfg.Slip.VerifyLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create verify lock", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Logger:    logg,
		Repo:      paymentsRepo,
		Verifier:  engine,
		Lock:      verifyLock,
		PromptPay: cfg.PromptPay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Logger: logg,
		Repo:   orders.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Orders:   ordersService,
			Payments: paymentsService,
			Gatherer: registry,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during server shutdown", err)
		}
	}
}
