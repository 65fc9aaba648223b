package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/config"
	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/handler"
	"github.com/arenastore/checkout-bff-go/internal/infra/backend"
	"github.com/arenastore/checkout-bff-go/internal/infra/cache"
	"github.com/arenastore/checkout-bff-go/internal/infra/clock"
	"github.com/arenastore/checkout-bff-go/internal/infra/gateway"
	"github.com/arenastore/checkout-bff-go/internal/infra/notify"
	"github.com/arenastore/checkout-bff-go/internal/infra/observability"
	"github.com/arenastore/checkout-bff-go/internal/infra/resilience"
	"github.com/arenastore/checkout-bff-go/internal/infra/sessionstore"
	"github.com/arenastore/checkout-bff-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("validation_mode", cfg.ValidationMode),
		zap.Bool("card_enabled", cfg.CardEnabled),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("pix_expiry", cfg.PixExpiry),
		zap.Duration("card_poll_interval", cfg.CardPollInterval),
		zap.Duration("card_poll_ceiling", cfg.CardPollCeiling),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "checkout-bff")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	itemCache := cache.New[*domain.Item](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("external-apis")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	payerCache := cache.New[*domain.PayerRef](cfg.CacheTTL)
	gatewayClient := gateway.NewClient(httpClient, cfg.GatewayURL, cfg.GatewayAPIKey, cb, resilienceCfg, payerCache, metrics, logger)
	// streaming uses its own client: no global timeout, connections are long-lived
	streamClient := gateway.NewStreamClient(&http.Client{}, cfg.GatewayURL, cfg.GatewayAPIKey, logger)
	backendClient := backend.NewClient(httpClient, cfg.BackendURL, cfg.BackendAPIKey, cb, resilienceCfg, itemCache, metrics, logger)

	// --- Persistence ---
	sessions := sessionstore.NewFile(cfg.PixSessionFile)
	addresses := sessionstore.NewAddressFile(cfg.BillingAddressFile)

	// --- Notifications ---
	hub := notify.NewHub(logger)

	// --- Services ---
	mode := service.ModeProduction
	if cfg.ValidationMode == "sandbox" {
		mode = service.ModeSandbox
	}
	validator := service.NewCardValidator(mode)

	timing := service.Timing{
		PixExpiry:        cfg.PixExpiry,
		QRRefreshDelay:   cfg.QRRefreshDelay,
		CardPollInterval: cfg.CardPollInterval,
		CardPollCeiling:  cfg.CardPollCeiling,
		RedirectDelay:    cfg.RedirectDelay,
	}

	checkoutSvc := service.NewCheckoutService(service.Deps{
		Gateway:      gatewayClient,
		Customers:    gatewayClient,
		Stream:       streamClient,
		Guard:        backendClient,
		Catalog:      backendClient,
		Profiles:     backendClient,
		Ledger:       backendClient,
		Sessions:     sessions,
		Addresses:    addresses,
		Notifier:     hub,
		Clock:        clock.NewReal(),
		Validator:    validator,
		Metrics:      metrics,
		Logger:       logger,
		Timing:       timing,
		CardEnabled:  cfg.CardEnabled,
		DefaultPhone: cfg.DefaultPayerPhone,
		DefaultCEP:   cfg.DefaultPayerCEP,
	})

	if validator.Sandbox() {
		logger.Warn("validator running in sandbox mode, devtools routes enabled")
	}

	// --- Router ---
	router := handler.NewRouter(handler.RouterDeps{
		Checkout:  checkoutSvc,
		Hub:       hub,
		Metrics:   metrics,
		Logger:    logger,
		JWTSecret: cfg.JWTSecret,
		Sandbox:   validator.Sandbox(),
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE responses stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	// stop attempt timers after in-flight requests drain
	checkoutSvc.Shutdown()

	logger.Info("server stopped")
}
