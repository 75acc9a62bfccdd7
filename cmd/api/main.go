package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cartship/flutterwave-gateway/api/routes"
	"github.com/cartship/flutterwave-gateway/internal/initiation"
	"github.com/cartship/flutterwave-gateway/internal/ledger"
	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/internal/reconcile"
	"github.com/cartship/flutterwave-gateway/internal/refunds"
	"github.com/cartship/flutterwave-gateway/internal/subscriptions"
	"github.com/cartship/flutterwave-gateway/internal/webhook"
	"github.com/cartship/flutterwave-gateway/pkg/config"
	"github.com/cartship/flutterwave-gateway/pkg/db"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
	"github.com/cartship/flutterwave-gateway/pkg/metrics"
	"github.com/cartship/flutterwave-gateway/pkg/migrate"
	"github.com/cartship/flutterwave-gateway/pkg/outbox"
	"github.com/cartship/flutterwave-gateway/pkg/redis"
)

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
	gatewayMetrics := metrics.NewGatewayMetrics(registry)

	flwClient, err := flutterwave.NewClient(cfg.Flutterwave, logg, flutterwave.WithMetrics(gatewayMetrics))
	if err != nil {
		logg.Error(context.Background(), "failed to create flutterwave client", err)
		os.Exit(1)
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	txnRepo := payments.NewRepository(dbClient.DB())
	subRepo := subscriptions.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:              orderRepo,
		Transactions:      txnRepo,
		Ledger:            ledgerSvc,
		Tx:                dbClient,
		Outbox:            outboxSvc,
		AutoCompleteOrder: cfg.FeatureFlags.AutoCompleteOrder,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	subSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:         subRepo,
		Transactions: txnRepo,
		Renewals:     orderSvc,
		Ledger:       ledgerSvc,
		Client:       flwClient,
		Tx:           dbClient,
		Outbox:       outboxSvc,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Transactions: txnRepo,
		Ledger:       ledgerSvc,
		Client:       flwClient,
		Tx:           dbClient,
		Outbox:       outboxSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create refund service", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Client:       flwClient,
		Transactions: txnRepo,
		Subs:         subRepo,
		Discovery:    subSvc,
		Orders:       orderSvc,
		OrderRepo:    orderRepo,
		Ledger:       ledgerSvc,
		Tx:           dbClient,
		Outbox:       outboxSvc,
		Metrics:      gatewayMetrics,
		Logger:       logg,
		RedirectURL:  cfg.Checkout.RedirectURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	initiationSvc, err := initiation.NewService(initiation.ServiceParams{
		Plans:                   initiation.NewPlanRepository(dbClient.DB()),
		Transactions:            txnRepo,
		Subscriptions:           subRepo,
		Orders:                  orderRepo,
		Client:                  flwClient,
		Initializer:             flwClient,
		Checkout:                cfg.Checkout,
		PaymentOptions:          cfg.FeatureFlags.PaymentOptions,
		MinimumFirstChargeCents: cfg.Checkout.MinFirstCharge,
		Logger:                  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create initiation service", err)
		os.Exit(1)
	}

	webhookSvc, err := webhook.NewService(webhook.ServiceParams{
		Reconciler:   reconciler,
		Client:       flwClient,
		Renewals:     orderSvc,
		Refunds:      refundSvc,
		Subs:         subRepo,
		Transactions: txnRepo,
		Lifecycle:    subSvc,
		Metrics:      gatewayMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := webhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "flutterwave-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Registry:       registry,
			Initiation:     initiationSvc,
			Reconciler:     reconciler,
			Orders:         orderRepo,
			Transactions:   txnRepo,
			Refunds:        refundSvc,
			Subscriptions:  subSvc,
			WebhookService: webhookSvc,
			WebhookGuard:   webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
