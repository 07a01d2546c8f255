package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-settlement/brackets"
	"github.com/Dosada05/tournament-settlement/config"
	"github.com/Dosada05/tournament-settlement/db"
	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/handlers"
	"github.com/Dosada05/tournament-settlement/payments"
	"github.com/Dosada05/tournament-settlement/repositories"
	"github.com/Dosada05/tournament-settlement/routes"
	"github.com/Dosada05/tournament-settlement/services"
	"github.com/Dosada05/tournament-settlement/storage"
	"github.com/go-chi/chi/v5"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	if err := db.Migrate(ctx, dbConn); err != nil {
		return err
	}
	logger.Info("database connection established")

	// Шина событий: Redis между инстансами, иначе в памяти процесса.
	var bus events.Bus
	if cfg.RedisURL != "" {
		redisBus, err := events.NewRedisBus(cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		if err := redisBus.Ping(ctx); err != nil {
			return fmt.Errorf("redis is unreachable: %w", err)
		}
		bus = redisBus
		logger.Info("Redis event bus connected")
	} else {
		bus = events.NewMemoryBus()
		logger.Info("in-memory event bus in use")
	}
	defer bus.Close()

	// Выгрузка выписок в Cloudflare R2 (необязательно)
	var objects storage.ObjectStore
	if cfg.StatementExportEnabled() {
		objects, err = storage.NewR2Store(ctx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			return err
		}
		logger.Info("Cloudflare R2 statement store initialized")
	}

	// Платёжный провайдер (необязательно)
	var (
		provider payments.Provider
		webhooks handlers.WebhookParser
	)
	if cfg.StripeSecretKey != "" {
		stripeProvider, err := payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency, logger)
		if err != nil {
			return err
		}
		provider, webhooks = stripeProvider, stripeProvider
		logger.Info("Stripe provider initialized", slog.String("currency", cfg.Currency))
	} else {
		logger.Warn("STRIPE_SECRET_KEY is empty: payouts, refunds and payment webhooks are disabled")
	}

	// WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run(ctx)
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go wsHub.Forward(sub)

	// Репозитории
	tx := repositories.NewPostgresTransactor(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	entryRepo := repositories.NewPostgresEntryRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	scheduleRepo := repositories.NewPostgresPayoutScheduleRepository(dbConn)
	ledgerRepo := repositories.NewPostgresLedgerRepository(dbConn)
	payoutRepo := repositories.NewPostgresPayoutRepository(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	complianceRepo := repositories.NewPostgresComplianceRepository(dbConn)
	auditRepo := repositories.NewPostgresAuditRepository(dbConn)

	// Сервисы
	ledgerService := services.NewLedgerService(tx, ledgerRepo, tournamentRepo, auditRepo, bus, logger)
	entitlementService := services.NewEntitlementService(entryRepo, matchRepo, scheduleRepo, ledgerRepo)
	tournamentService := services.NewTournamentService(tx, tournamentRepo, entryRepo, matchRepo, scheduleRepo, auditRepo,
		brackets.NewSwissGenerator(brackets.HigherRankedFirst{}), cfg.RefundLockOffset, bus, logger)
	entryService := services.NewEntryService(tx, tournamentRepo, entryRepo, auditRepo, ledgerService, provider, bus, logger)
	refundService := services.NewRefundService(tx, tournamentRepo, entryRepo, auditRepo, ledgerService, provider, bus, logger)
	payoutService := services.NewPayoutService(tx, payoutRepo, tournamentRepo, entryRepo, userRepo, complianceRepo, auditRepo,
		entitlementService, ledgerService, provider,
		services.PayoutPolicy{ProviderTimeout: cfg.ProviderTimeout, StalePayoutAfter: cfg.StalePayoutAfter},
		bus, logger)
	statementService := services.NewStatementService(ledgerService, objects, logger)

	// Планировщик
	sched, err := services.StartScheduler(cfg.SchedulerInterval, tournamentService, payoutService, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}()

	// Маршрутизатор
	router := chi.NewRouter()
	routes.SetupRoutes(router, routes.Handlers{
		Tournaments: handlers.NewTournamentHandler(tournamentService),
		Ledger:      handlers.NewLedgerHandler(ledgerService, statementService),
		Entries:     handlers.NewEntryHandler(entryService, refundService),
		Payouts:     handlers.NewPayoutHandler(payoutService),
		Webhooks:    handlers.NewWebhookHandler(webhooks, entryService, logger),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger),
	}, []byte(cfg.JWTSecretKey), cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second + cfg.ProviderTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
	if err := server.Shutdown(shutdownCtx); err != nil {
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
