package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mealicious/storefront-api/api/controllers"
	cartcontrollers "github.com/mealicious/storefront-api/api/controllers/cart"
	ordercontrollers "github.com/mealicious/storefront-api/api/controllers/orders"
	webhookcontrollers "github.com/mealicious/storefront-api/api/controllers/webhooks"
	"github.com/mealicious/storefront-api/api/middleware"
	"github.com/mealicious/storefront-api/internal/auth"
	"github.com/mealicious/storefront-api/internal/cart"
	"github.com/mealicious/storefront-api/internal/orders"
	"github.com/mealicious/storefront-api/internal/payments"
	"github.com/mealicious/storefront-api/internal/products"
	"github.com/mealicious/storefront-api/internal/reviews"
	"github.com/mealicious/storefront-api/pkg/auth/session"
	"github.com/mealicious/storefront-api/pkg/config"
	"github.com/mealicious/storefront-api/pkg/enums"
	"github.com/mealicious/storefront-api/pkg/logger"
)

type redisStore interface {
	middleware.IdempotencyStore
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Dependencies are the wired services and infrastructure the router mounts.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    redisStore
	Sessions session.AccessSessionChecker
	Metrics  http.Handler

	Auth       auth.Service
	Products   products.Service
	Cart       cart.Service
	GuestCarts cartcontrollers.GuestStore
	Orders     orders.Service
	Payments   payments.Service
	Reviews    reviews.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	signupPolicy := middleware.NewAuthRateLimitPolicy(
		"signup",
		cfg.AuthRateLimit.SignupWindow,
		cfg.AuthRateLimit.SignupIPLimit,
		cfg.AuthRateLimit.SignupEmailLimit,
	)

	requireAuth := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(deps.Payments, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(signupPolicy, deps.Redis, logg)).Post("/signup", controllers.AuthSignup(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(requireAuth).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		r.With(middleware.AuthAllowExpired(cfg.JWT, logg)).Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(deps.Products, logg))
		r.Get("/{productId}", controllers.ProductDetail(deps.Products, logg))
		r.Get("/{productId}/reviews", controllers.ReviewList(deps.Reviews, logg))
	})

	r.With(optionalAuth).Get("/api/v1/cart", cartcontrollers.CartFetch(deps.Cart, deps.GuestCarts, logg))

	r.Route("/api/v1/guest-cart", func(r chi.Router) {
		r.Get("/", cartcontrollers.GuestCartFetch(deps.Cart, deps.GuestCarts, logg))
		r.Post("/", cartcontrollers.GuestCartCreate(logg))
		r.Get("/items", cartcontrollers.GuestCartItems(deps.GuestCarts, logg))
		r.Post("/items", cartcontrollers.GuestCartAddItem(deps.Cart, deps.GuestCarts, logg))
		r.Patch("/items/{productId}", cartcontrollers.GuestCartUpdateItem(deps.Cart, deps.GuestCarts, logg))
		r.Delete("/items/{productId}", cartcontrollers.GuestCartRemoveItem(deps.Cart, deps.GuestCarts, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
			r.Post("/merge", cartcontrollers.CartMerge(deps.Cart, deps.GuestCarts, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})

		r.Post("/payments/verify", controllers.PaymentVerify(deps.Payments, logg))
		r.Post("/products/{productId}/reviews", controllers.ReviewCreate(deps.Reviews, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Requires(enums.RoleAdmin, logg))
			r.Get("/orders", controllers.AdminOrderList(deps.Orders, logg))
			r.Patch("/orders/{orderId}/status", controllers.AdminOrderUpdateStatus(deps.Orders, logg))
			r.Patch("/reviews/{reviewId}", controllers.AdminReviewUpdate(deps.Reviews, logg))
		})
	})

	return r
}
