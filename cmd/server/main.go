package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/remit/client"
	"github.com/brojonat/remit/service/config"
	"github.com/brojonat/remit/service/metrics"
	natspkg "github.com/brojonat/remit/service/nats"
	"github.com/brojonat/remit/service/payment"
	"github.com/brojonat/remit/service/server"
	"github.com/brojonat/remit/service/stripe"
	"github.com/brojonat/remit/service/temporal"
	"github.com/brojonat/remit/service/wallet"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"wallet_id", cfg.WalletID,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize NATS publisher and SSE stream (optional)
	var publisher wallet.Publisher
	var ssePublisher *server.SSEPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher

		ssePublisher, err = server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create SSE publisher", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, transaction events disabled")
	}

	// Initialize the card payment runner (optional)
	var runner payment.Runner
	switch {
	case !cfg.CardPaymentsEnabled():
		logger.Warn("STRIPE_SECRET_KEY not set, card payments disabled")
	case cfg.PaymentRunner == config.RunnerTemporal:
		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			cfg.PaymentTimeout,
			metricsCollector,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		runner = temporalClient
		logger.Info("card payments run as temporal workflows",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
			"task_queue", cfg.TemporalTaskQueue,
		)
	default:
		backend := client.NewPaymentClient(cfg.PaymentAPIURL, &http.Client{Timeout: cfg.PaymentTimeout}, logger)
		runner = payment.NewForm(backend, stripe.NewProcessor(cfg.StripeSecretKey, logger), metricsCollector, logger)
		logger.Info("card payments run inline", "payment_api_url", cfg.PaymentAPIURL)
	}

	var history []wallet.Transaction
	if cfg.SeedDemoHistory {
		history = wallet.DemoHistory()
	}

	wal, err := wallet.New(wallet.Options{
		ID:             cfg.WalletID,
		InitialBalance: cfg.InitialBalance,
		Currency:       cfg.BaseCurrency,
		Rate: wallet.ExchangeRate{
			From: cfg.BaseCurrency,
			To:   cfg.TargetCurrency,
			Rate: cfg.ExchangeRate,
		},
		History:        history,
		NoticeTTL:      cfg.NoticeTTL,
		PaymentTimeout: payment.RoundTripTimeout(cfg.PaymentTimeout),
		Runner:         runner,
		Publisher:      publisher,
		Metrics:        metricsCollector,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to create wallet", "error", err)
		os.Exit(1)
	}

	go wal.RunNoticeExpiry(ctx, cfg.NoticeTick)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, wal, ssePublisher, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"card_payments", runner != nil,
		"events", publisher != nil,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
