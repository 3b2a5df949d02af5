package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/toolyard/marketplace-backend/api/routes"
	"github.com/toolyard/marketplace-backend/internal/accounts"
	"github.com/toolyard/marketplace-backend/internal/address"
	"github.com/toolyard/marketplace-backend/internal/cart"
	"github.com/toolyard/marketplace-backend/internal/checkout"
	"github.com/toolyard/marketplace-backend/internal/orders"
	"github.com/toolyard/marketplace-backend/internal/payments"
	"github.com/toolyard/marketplace-backend/internal/recentlyviewed"
	"github.com/toolyard/marketplace-backend/internal/users"
	stripewebhook "github.com/toolyard/marketplace-backend/internal/webhooks/stripe"
	"github.com/toolyard/marketplace-backend/pkg/config"
	"github.com/toolyard/marketplace-backend/pkg/db"
	"github.com/toolyard/marketplace-backend/pkg/eventbus"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/metrics"
	"github.com/toolyard/marketplace-backend/pkg/migrate"
	"github.com/toolyard/marketplace-backend/pkg/redis"
	pkgstripe "github.com/toolyard/marketplace-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	taxRate, err := cfg.Checkout.Rate()
	if err != nil {
		return err
	}

	dbClient, err := openDatabase(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	conn := dbClient.DB()
	userCarts, err := cart.NewPersistentStore(cart.NewRepository(conn), dbClient)
	if err != nil {
		return err
	}
	guestCarts, err := cart.NewLocalStore(redisClient, cfg.Checkout.GuestCartTTL)
	if err != nil {
		return err
	}
	carts, err := cart.NewService(userCarts, guestCarts, logg)
	if err != nil {
		return err
	}

	addrs, err := address.NewService(address.NewRepository(conn), dbClient, logg)
	if err != nil {
		return err
	}

	acct, err := accounts.NewService(accounts.ServiceParams{
		Users:          users.NewRepository(conn),
		Tx:             dbClient,
		PasswordConfig: cfg.Password,
		JWTConfig:      cfg.JWT,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	stripeClient, gateway, err := buildGateway(ctx, cfg, logg, checkoutMetrics)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	subscribeLogging(bus, logg)

	orderRepo := orders.NewRepository(conn)
	orch, err := checkout.NewOrchestrator(checkout.OrchestratorParams{
		Attempts:       checkout.NewAttemptRepository(conn),
		Orders:         orderRepo,
		Tx:             dbClient,
		Gateway:        gateway,
		Carts:          carts,
		Addresses:      addrs,
		Locker:         redisClient,
		Events:         bus,
		Metrics:        checkoutMetrics,
		Logger:         logg,
		ConfirmLockTTL: cfg.Checkout.ConfirmLockTTL,
	})
	if err != nil {
		return err
	}

	flow, err := checkout.NewFlow(checkout.FlowParams{
		Sessions:     redisClient,
		Carts:        carts,
		Addresses:    addrs,
		Accounts:     acct,
		Orchestrator: orch,
		Events:       bus,
		Logger:       logg,
		TaxRate:      taxRate,
		Currency:     cfg.Checkout.Currency,
		SessionTTL:   cfg.Checkout.SessionTTL,
	})
	if err != nil {
		return err
	}

	reader, err := orders.NewReader(orderRepo, taxRate, cfg.Checkout.Currency, logg)
	if err != nil {
		return err
	}
	recent, err := recentlyviewed.NewService(redisClient, cfg.Checkout.RecentlyViewed, cfg.Checkout.GuestCartTTL)
	if err != nil {
		return err
	}

	params := routes.Params{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Gatherer:       registry,
		HTTPMetrics:    metrics.NewHTTPMetrics(registry),
		Accounts:       acct,
		Addresses:      addrs,
		Carts:          carts,
		Checkout:       flow,
		Orchestrator:   orch,
		Orders:         reader,
		RecentlyViewed: recent,
	}
	if stripeClient != nil {
		webhooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: orch, Logger: logg})
		if err != nil {
			return err
		}
		guard, err := stripewebhook.NewEventGuard(redisClient, stripewebhook.DefaultEventTTL)
		if err != nil {
			return err
		}
		params.StripeClient = stripeClient
		params.StripeWebhooks = webhooks
		params.StripeGuard = guard
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	if cfg.FeatureFlags.UseSQLite {
		return db.NewSQLite(ctx, cfg.DB.SQLitePath, logg)
	}
	return db.New(ctx, cfg.DB, logg)
}

// buildGateway picks the payment gateway from the feature flags. The Stripe client is nil in mock mode.
func buildGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.CheckoutMetrics) (*pkgstripe.Client, payments.Gateway, error) {
	if cfg.FeatureFlags.MockPayments {
		logg.Warn(ctx, "using mock payment gateway")
		return nil, payments.NewMockGateway(cfg.App.IsDev()), nil
	}

	client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, nil, err
	}
	stripeGateway, err := payments.NewStripeGateway(client, payments.StripeOptions{
		WalletDomainVerified: cfg.Checkout.WalletDomainSet,
		Metrics:              m,
		Logger:               logg,
	})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.FeatureFlags.PaymentFallback || cfg.App.IsProd() {
		return client, stripeGateway, nil
	}

	fallback, err := payments.NewFallbackGateway(stripeGateway, logg)
	if err != nil {
		return nil, nil, err
	}
	logg.Warn(ctx, "payment fallback enabled; gateway outages produce synthetic intents")
	return client, fallback, nil
}

func subscribeLogging(bus *eventbus.Bus, logg *logger.Logger) {
	bus.Subscribe(eventbus.TopicOrderConfirmed, func(ctx context.Context, event eventbus.Event) error {
		confirmed, ok := event.(eventbus.OrderConfirmed)
		if !ok {
			return nil
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"order_id":  confirmed.OrderID.String(),
			"total":     confirmed.Total.StringFixed(2),
			"synthetic": confirmed.Synthetic,
		}), "order confirmed")
		return nil
	})
	bus.Subscribe(eventbus.TopicPaymentFailed, func(ctx context.Context, event eventbus.Event) error {
		failed, ok := event.(eventbus.PaymentFailed)
		if !ok {
			return nil
		}
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"gateway_intent_id": failed.GatewayIntentID,
			"reason":            failed.Reason,
		}), "payment failed")
		return nil
	})
	bus.Subscribe(eventbus.TopicSignInRequested, func(ctx context.Context, event eventbus.Event) error {
		requested, ok := event.(eventbus.SignInRequested)
		if !ok {
			return nil
		}
		logg.Info(logg.WithField(ctx, "checkout_session_id", requested.SessionID), "sign-in offered to guest")
		return nil
	})
}
