package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartship/flutterwave-gateway/api/controllers"
	webhookcontrollers "github.com/cartship/flutterwave-gateway/api/controllers/webhooks"
	"github.com/cartship/flutterwave-gateway/api/middleware"
	"github.com/cartship/flutterwave-gateway/internal/initiation"
	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/internal/reconcile"
	"github.com/cartship/flutterwave-gateway/internal/refunds"
	subscriptionsvc "github.com/cartship/flutterwave-gateway/internal/subscriptions"
	"github.com/cartship/flutterwave-gateway/internal/webhook"
	"github.com/cartship/flutterwave-gateway/pkg/config"
	"github.com/cartship/flutterwave-gateway/pkg/db"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          db.Pinger
	Registry       *prometheus.Registry
	Initiation     initiation.Service
	Reconciler     reconcile.Service
	Orders         orders.Repository
	Transactions   payments.Repository
	Refunds        refunds.Service
	Subscriptions  subscriptionsvc.Service
	WebhookService *webhook.Service
	WebhookGuard   *webhook.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/flutterwave", webhookcontrollers.FlutterwaveWebhook(params.WebhookService, params.WebhookGuard, cfg.Flutterwave.WebhookSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout/flutterwave", controllers.Checkout(params.Initiation, logg))
		r.Post("/flutterwave/confirm", controllers.PaymentConfirm(params.Reconciler, params.Orders, logg))

		r.Route("/subscriptions/{subscriptionId}", func(r chi.Router) {
			r.Post("/resync", controllers.SubscriptionResync(params.Subscriptions, logg))
			r.Post("/cancel", controllers.SubscriptionCancel(params.Subscriptions, logg))
		})

		r.Post("/transactions/{transactionId}/refund", controllers.TransactionRefund(params.Transactions, params.Refunds, logg))
		r.Get("/orders/{orderId}/transactions", controllers.OrderTransactions(params.Transactions, logg))
	})

	return r
}
