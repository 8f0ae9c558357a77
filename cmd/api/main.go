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

	"github.com/mealicious/storefront-api/api"
	"github.com/mealicious/storefront-api/api/routes"
	"github.com/mealicious/storefront-api/internal/auth"
	"github.com/mealicious/storefront-api/internal/cart"
	"github.com/mealicious/storefront-api/internal/orders"
	"github.com/mealicious/storefront-api/internal/payments"
	"github.com/mealicious/storefront-api/internal/products"
	"github.com/mealicious/storefront-api/internal/reviews"
	"github.com/mealicious/storefront-api/internal/users"
	"github.com/mealicious/storefront-api/pkg/auth/session"
	"github.com/mealicious/storefront-api/pkg/config"
	"github.com/mealicious/storefront-api/pkg/db"
	"github.com/mealicious/storefront-api/pkg/logger"
	"github.com/mealicious/storefront-api/pkg/metrics"
	"github.com/mealicious/storefront-api/pkg/migrate"
	"github.com/mealicious/storefront-api/pkg/outbox"
	"github.com/mealicious/storefront-api/pkg/outbox/idempotency"
	"github.com/mealicious/storefront-api/pkg/razorpay"
	"github.com/mealicious/storefront-api/pkg/redis"
)

const (
	webhookGuardTTL = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	gormDB := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	productRepo := products.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)

	productService, err := products.NewService(productRepo)
	if err != nil {
		return err
	}

	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:     cartRepo,
		Products: productRepo,
		Tx:       dbClient,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	guestCarts, err := cart.NewGuestStore(redisClient, cfg.GuestCart.TTL())
	if err != nil {
		return err
	}

	gateway, err := razorpay.NewClient(cfg.Razorpay, logg)
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Cart:     cartRepo,
		Gateway:  gateway,
		Tx:       dbClient,
		Outbox:   outboxService,
		Metrics:  checkoutMetrics,
		Checkout: cfg.Checkout,
		Logger:   logg,
		DB:       gormDB,
	})
	if err != nil {
		return err
	}

	webhookGuard, err := idempotency.NewManager(redisClient, webhookGuardTTL)
	if err != nil {
		return err
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Orders:        orderRepo,
		Cart:          cartService,
		Tx:            dbClient,
		Outbox:        outboxService,
		Guard:         webhookGuard,
		Metrics:       checkoutMetrics,
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
		SuccessURL:    cfg.Checkout.SuccessURL,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	reviewService, err := reviews.NewService(reviews.ServiceParams{
		Repo:      reviews.NewRepository(gormDB),
		Products:  productRepo,
		Purchases: orderRepo,
		Tx:        dbClient,
		Outbox:    outboxService,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(gormDB),
		SessionManager: sessionManager,
		Cart:           cartService,
		GuestStore:     guestCarts,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	router := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:         dbClient,
		Redis:      redisClient,
		Sessions:   sessionManager,
		Metrics:    metrics.Handler(registry),
		Auth:       authService,
		Products:   productService,
		Cart:       cartService,
		GuestCarts: guestCarts,
		Orders:     orderService,
		Payments:   paymentService,
		Reviews:    reviewService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := api.NewServer(":"+port, router)

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
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
