package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/promptshop/backend/internal/cron"
	"github.com/promptshop/backend/internal/payments"
	"github.com/promptshop/backend/internal/slip"
	"github.com/promptshop/backend/pkg/config"
	"github.com/promptshop/backend/pkg/db"
	"github.com/promptshop/backend/pkg/logger"
	"github.com/promptshop/backend/pkg/metrics"
	"github.com/promptshop/backend/pkg/migrate"
	"github.com/promptshop/backend/pkg/redis"
)

const lockKeyFormat = "ps:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	paymentsRepo := payments.NewRepository(dbClient.DB())

	engine, err := slip.NewEngine(slip.EngineParams{
		Logger:     logg,
		Fetcher:    slip.NewFetcher(cfg.Slip.FetchTimeout, cfg.Slip.MaxImageBytes),
		Normalizer: slip.NewNormalizer(cfg.Slip.TempDir),
		Scanner:    slip.NewScanner(),
		Recognizer: slip.NewTesseractRecognizer(cfg.Slip.OCRLanguages),
		Orders:     payments.NewOrderLookup(paymentsRepo),
		Metrics:    metrics.NewSlipVerificationMetrics(nil),
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

	expiryJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Payments: paymentsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment expiry job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registry.Register(expiryJob)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
