package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderflow/api/controllers"
	cartcontrollers "github.com/angelmondragon/orderflow/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/orderflow/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/orderflow/api/controllers/payments"
	returncontrollers "github.com/angelmondragon/orderflow/api/controllers/returns"
	webhookcontrollers "github.com/angelmondragon/orderflow/api/controllers/webhooks"
	"github.com/angelmondragon/orderflow/api/middleware"
	"github.com/angelmondragon/orderflow/internal/cart"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/returns"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

// PaymentService is everything the HTTP layer needs from the payment reconciler.
type PaymentService interface {
	paymentcontrollers.Service
	webhookcontrollers.GatewayWebhookService
}

type Dependencies struct {
	DB        controllers.Pinger
	Redis     *redis.Client
	Orders    orders.Service
	Cart      cart.Service
	Payments  PaymentService
	Returns   returns.Service
	Inventory controllers.StockAdjuster
	Catalog   controllers.SellUnitFinder
	Metrics   http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// A nil *redis.Client must reach the middleware as a nil interface.
	var idempotencyStore redis.IdempotencyStore
	var limiterStore interface {
		FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	}
	var redisPinger controllers.Pinger
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		limiterStore = deps.Redis
		redisPinger = deps.Redis
	}

	verifyLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("payment_verify", cfg.RateLimit.Window, cfg.RateLimit.PaymentVerifyLimit),
		limiterStore, logg)
	deliverLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("delivery_otp", cfg.RateLimit.Window, cfg.RateLimit.DeliveryLimit),
		limiterStore, logg)
	resendLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("otp_resend", cfg.RateLimit.Window, cfg.RateLimit.OTPResendLimit),
		limiterStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": redisPinger,
		}))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(deps.Payments, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))

			r.Get("/v1/cart", cartcontrollers.Get(deps.Cart, logg))
			r.Delete("/v1/cart", cartcontrollers.Clear(deps.Cart, logg))
			r.Put("/v1/cart/items/{sellUnitId}", cartcontrollers.SetItem(deps.Cart, logg))
			r.Delete("/v1/cart/items/{sellUnitId}", cartcontrollers.RemoveItem(deps.Cart, logg))
			r.Post("/v1/cart/coupon", cartcontrollers.ApplyCoupon(deps.Cart, logg))
			r.Delete("/v1/cart/coupon", cartcontrollers.RemoveCoupon(deps.Cart, logg))

			r.Post("/v1/orders", ordercontrollers.PlaceOrder(deps.Cart, logg))
			r.Get("/v1/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/v1/orders/{orderId}/otp", ordercontrollers.DeliveryOTP(deps.Orders, logg))
			r.With(resendLimit).Post("/v1/orders/{orderId}/otp/resend", ordercontrollers.ResendOTP(deps.Orders, logg))
			r.Post("/v1/orders/{orderId}/payments", paymentcontrollers.CreateGatewayOrder(deps.Payments, cfg.Gateway.KeyID, logg))
			r.With(verifyLimit).Post("/v1/payments/verify", paymentcontrollers.VerifyPayment(deps.Payments, logg))
			r.Post("/v1/orders/{orderId}/items/{itemId}/returns", returncontrollers.Create(deps.Returns, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleVendor, enums.ActorRoleAgent))

			r.Get("/v1/orders/lookup/{orderNumber}", ordercontrollers.Lookup(deps.Orders, logg))
			r.Get("/v1/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Get("/v1/orders/{orderId}/returns", returncontrollers.ListForOrder(deps.Returns, logg))
			r.Get("/v1/returns/{returnId}", returncontrollers.Detail(deps.Returns, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleVendor))
			r.Post("/v1/orders/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Route("/v1/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor))
			r.Get("/orders", ordercontrollers.VendorList(deps.Orders, logg))
			r.Post("/orders/{orderId}/confirm", ordercontrollers.VendorConfirm(deps.Orders, logg))
			r.Post("/orders/{orderId}/status", ordercontrollers.VendorAdvance(deps.Orders, logg))
			r.Post("/returns/{returnId}/decision", returncontrollers.VendorDecision(deps.Returns, logg))
			r.Put("/inventory/{sellUnitId}", controllers.AdjustStock(deps.Inventory, deps.Catalog, logg))
		})

		r.Route("/v1/agent", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAgent))
			r.With(deliverLimit).Post("/orders/{orderId}/deliver", ordercontrollers.AgentDeliver(deps.Orders, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/v1/orders/lookup/{orderNumber}", ordercontrollers.Lookup(deps.Orders, logg))
		r.Get("/v1/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		r.Post("/v1/orders/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		r.Get("/v1/orders/{orderId}/payments", paymentcontrollers.AdminHistory(deps.Payments, logg))
		r.Get("/v1/orders/{orderId}/payments/duplicates", paymentcontrollers.AdminDuplicates(deps.Payments, logg))
		r.Get("/v1/orders/{orderId}/returns", returncontrollers.ListForOrder(deps.Returns, logg))
		r.Post("/v1/payments/{paymentId}/refunds", paymentcontrollers.AdminRefund(deps.Payments, logg))
		r.Post("/v1/returns/{returnId}/decision", returncontrollers.AdminDecision(deps.Returns, logg))
	})

	return r
}
