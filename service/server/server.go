package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/remit/service/metrics"
	"github.com/brojonat/remit/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the wallet service.
type Server struct {
	addr         string
	wallet       *wallet.Wallet
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, w *wallet.Wallet, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		wallet:       w,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Handler builds the routed handler, including CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h))
	}

	// Wallet routes
	route("GET /api/v1/wallet", handleGetWallet(s.wallet))
	route("GET /api/v1/wallet/transactions", handleListTransactions(s.wallet))
	route("POST /api/v1/wallet/send", handleSendMoney(s.wallet, s.logger))
	route("POST /api/v1/wallet/send/toggle", handleToggleSend(s.wallet))
	route("PUT /api/v1/wallet/currency", handleSelectCurrency(s.wallet, s.logger))

	// Add-money routes
	route("POST /api/v1/wallet/add-money/toggle", handleToggleAddMoney(s.wallet))
	route("PUT /api/v1/wallet/add-money/amount", handleSetAddAmount(s.wallet, s.logger))
	route("PUT /api/v1/wallet/add-money/method", handleChooseMethod(s.wallet, s.logger))
	route("POST /api/v1/wallet/add-money/deposit", handleDeposit(s.wallet, s.logger))
	route("POST /api/v1/wallet/add-money/card", handlePayByCard(s.wallet, s.logger))
	route("POST /api/v1/wallet/add-money/cancel", handleCancelCard(s.wallet, s.logger))

	// SSE streaming endpoint (if SSE publisher is configured)
	if s.ssePublisher != nil {
		route("GET /api/v1/stream/transactions", handleStreamTransactions(s.ssePublisher, s.wallet.ID(), s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoint disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE streams stay open and card payments wait on the processor.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
