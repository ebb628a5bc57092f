package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/foodrescue-backend/api/controllers"
	"github.com/angelmondragon/foodrescue-backend/api/middleware"
	"github.com/angelmondragon/foodrescue-backend/internal/notifications"
	"github.com/angelmondragon/foodrescue-backend/pkg/config"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/metrics"
	"github.com/angelmondragon/foodrescue-backend/pkg/redis"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies groups everything the router hands to controllers and middleware.
// Redis-backed pieces are optional; the matching middleware is skipped when nil.
type Dependencies struct {
	DBPinger    controllers.Pinger
	RedisPinger controllers.Pinger

	Idempotency redis.IdempotencyStore
	RateLimiter rateLimiter

	Purchases     controllers.PurchaseService
	Sales         controllers.BuyerSales
	Pickup        controllers.PickupService
	Notifications notifications.Service

	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	preparePolicy := middleware.NewRateLimitPolicy(
		"prepare-purchase",
		cfg.RateLimit.PrepareWindow,
		cfg.RateLimit.PrepareLimit,
	)
	idempotent := middleware.Idempotency(deps.Idempotency, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DBPinger,
			"redis":    deps.RedisPinger,
		}))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleCustomer))

			r.With(middleware.RateLimit(preparePolicy, deps.RateLimiter, logg)).
				Post("/prepare-purchase", controllers.PreparePurchase(deps.Purchases, logg))
			r.With(idempotent).Post("/buy-offers", controllers.BuyOffers(deps.Purchases, logg))
			r.Get("/customer/purchases", controllers.CustomerPurchases(deps.Sales, logg))
			r.Get("/purchase-code/{saleId}", controllers.PurchaseCode(deps.Sales, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleSeller))

			r.Post("/check-customer-code", controllers.CheckCustomerCode(deps.Pickup, logg))
			r.Post("/complete-sell/{saleId}", controllers.CompleteSell(deps.Pickup, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.With(idempotent).Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.With(idempotent).Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
