package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolyard/marketplace-backend/api/controllers"
	webhookcontrollers "github.com/toolyard/marketplace-backend/api/controllers/webhooks"
	"github.com/toolyard/marketplace-backend/api/middleware"
	"github.com/toolyard/marketplace-backend/internal/accounts"
	"github.com/toolyard/marketplace-backend/internal/address"
	"github.com/toolyard/marketplace-backend/internal/cart"
	checkoutsvc "github.com/toolyard/marketplace-backend/internal/checkout"
	"github.com/toolyard/marketplace-backend/internal/orders"
	"github.com/toolyard/marketplace-backend/internal/recentlyviewed"
	stripewebhook "github.com/toolyard/marketplace-backend/internal/webhooks/stripe"
	"github.com/toolyard/marketplace-backend/pkg/config"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/metrics"
	"github.com/toolyard/marketplace-backend/pkg/redis"
	"github.com/toolyard/marketplace-backend/pkg/stripe"
)

type pinger interface {
	Ping(context.Context) error
}

// Params carries everything the router mounts. Optional collaborators may be nil; their routes
// then answer with an internal error or are not mounted at all.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          pinger
	Redis       *redis.Client
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Accounts       accounts.Service
	Addresses      address.Service
	Carts          cart.Service
	Checkout       controllers.CheckoutFlow
	Orchestrator   *checkoutsvc.Orchestrator
	Orders         orders.Reader
	RecentlyViewed *recentlyviewed.Service

	StripeClient   *stripe.Client
	StripeWebhooks *stripewebhook.Service
	StripeGuard    *stripewebhook.EventGuard
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	limits := cfg.RateLimit
	loginLimit := middleware.RateLimit(middleware.RatePolicy{
		Name:   "login",
		Window: limits.LoginWindow,
		Limits: map[middleware.RateScope]int{middleware.ScopeIP: limits.LoginIPLimit, middleware.ScopeEmail: limits.LoginEmailLimit},
	}, p.Redis, logg)
	accountLimit := middleware.RateLimit(middleware.RatePolicy{
		Name:   "guest_account",
		Window: limits.AccountWindow,
		Limits: map[middleware.RateScope]int{middleware.ScopeIP: limits.AccountIPLimit, middleware.ScopeEmail: limits.AccountEmailLimit},
	}, p.Redis, logg)
	intentLimit := middleware.RateLimit(middleware.RatePolicy{
		Name:   "intent",
		Window: limits.IntentWindow,
		Limits: map[middleware.RateScope]int{middleware.ScopeIP: limits.IntentIPLimit, middleware.ScopeGuest: limits.IntentGuestLimit},
	}, p.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	if p.StripeClient != nil {
		r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhooks, p.StripeClient, p.StripeGuard, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, cfg.Checkout.IdempotencyTTL, logg))

		r.With(loginLimit).Post("/auth/login", controllers.AuthLogin(p.Accounts, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(p.Carts, logg))
			r.Delete("/", controllers.CartEmpty(p.Carts, logg))
			r.Post("/items", controllers.CartAddItem(p.Carts, logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(p.Carts, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(p.Carts, logg))
			r.Get("/contains/{listingId}", controllers.CartContains(p.Carts, logg))
		})

		r.Route("/listings", func(r chi.Router) {
			r.Get("/recent", controllers.RecentlyViewed(p.RecentlyViewed, logg))
			r.Post("/{listingId}/view", controllers.ListingViewed(p.RecentlyViewed, logg))
		})

		r.Get("/addresses/defaults", controllers.AddressDefaults(p.Addresses, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/wallet-offer", controllers.CheckoutWalletOffer(p.Orchestrator, logg))
			r.Post("/sessions", controllers.CheckoutBegin(p.Checkout, logg))
			r.Route("/sessions/{sessionId}", func(r chi.Router) {
				r.Get("/", controllers.CheckoutGet(p.Checkout, logg))
				r.With(accountLimit).Post("/shipping", controllers.CheckoutShipping(p.Checkout, logg))
				r.Post("/back", controllers.CheckoutBack(p.Checkout, logg))
				r.With(intentLimit).Post("/intent", controllers.CheckoutIntent(p.Checkout, logg))
				r.Post("/pay", controllers.CheckoutPay(p.Checkout, logg))
				r.Post("/confirm", controllers.CheckoutConfirm(p.Checkout, logg))
			})
		})

		r.With(intentLimit).Post("/create-payment-intent", controllers.CreatePaymentIntent(p.Checkout, logg))
		r.Post("/confirm-payment", controllers.ConfirmPayment(p.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireUser(logg)).Get("/", controllers.OrderList(p.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(p.Orders, logg))
		})
	})

	return r
}
