package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/storeline/storeline/internal/accounts"
	"github.com/storeline/storeline/internal/app"
	"github.com/storeline/storeline/internal/customers"
	"github.com/storeline/storeline/internal/inventory"
	"github.com/storeline/storeline/internal/invoices"
	"github.com/storeline/storeline/internal/layby"
	"github.com/storeline/storeline/internal/observability"
	"github.com/storeline/storeline/internal/platform/cache"
	"github.com/storeline/storeline/internal/platform/db"
	"github.com/storeline/storeline/internal/shared"
	"github.com/storeline/storeline/internal/statements"
	"github.com/storeline/storeline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	customerRepo := customers.NewRepository(pool)
	customerService := customers.NewService(customerRepo, auditLogger)
	customerHandler := customers.NewHandler(logger, customerService, validate)

	ledgerCache := accounts.NewCache(redisClient, cfg.CacheTTL)
	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo, auditLogger, ledgerCache)
	accountHandler := accounts.NewHandler(logger, accountService, validate)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, validate)

	laybyRepo := layby.NewRepository(pool)
	laybyService := layby.NewService(laybyRepo, accountService, inventoryService, auditLogger)
	laybyHandler := layby.NewHandler(logger, laybyService, validate)

	statementRepo := statements.NewRepository(pool)
	statementService := statements.NewService(statementRepo, jobClient, auditLogger,
		statements.NewRenderer(cfg.StatementCurrency))
	statementHandler := statements.NewHandler(logger, statementService, validate)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, accountService, auditLogger, logger)
	invoiceHandler := invoices.NewHandler(logger, invoiceService, validate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CustomersHandler:  customerHandler,
		AccountsHandler:   accountHandler,
		InventoryHandler:  inventoryHandler,
		LaybyHandler:      laybyHandler,
		StatementsHandler: statementHandler,
		InvoicesHandler:   invoiceHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
