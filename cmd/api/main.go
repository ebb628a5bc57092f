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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/foodrescue-backend/api/routes"
	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/internal/notifications"
	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/internal/pickup"
	"github.com/angelmondragon/foodrescue-backend/internal/purchases"
	"github.com/angelmondragon/foodrescue-backend/internal/sales"
	"github.com/angelmondragon/foodrescue-backend/internal/staging"
	"github.com/angelmondragon/foodrescue-backend/pkg/config"
	"github.com/angelmondragon/foodrescue-backend/pkg/db"
	"github.com/angelmondragon/foodrescue-backend/pkg/env"
	"github.com/angelmondragon/foodrescue-backend/pkg/instance"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/metrics"
	"github.com/angelmondragon/foodrescue-backend/pkg/migrate"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox"
	"github.com/angelmondragon/foodrescue-backend/pkg/redis"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var registerer prometheus.Registerer
	var metricsHandler http.Handler
	if cfg.FeatureFlags.Metrics {
		registerer = prometheus.DefaultRegisterer
		metricsHandler = promhttp.Handler()
	}
	purchaseMetrics := metrics.NewPurchaseMetrics(registerer)

	stagingStore, err := buildStagingStore(cfg, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create staging store", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	offerRepo := offers.NewRepository(conn)
	saleRepo := sales.NewRepository(conn)
	establishmentRepo := establishments.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	builder, err := offers.NewBuilder(offerRepo)
	if err != nil {
		logg.Error(ctx, "failed to create snapshot builder", err)
		os.Exit(1)
	}

	engine, err := sales.NewEngine(sales.EngineParams{
		DB:             dbClient,
		Offers:         offerRepo,
		Sales:          saleRepo,
		Establishments: establishmentRepo,
		Outbox:         outboxService,
		CodeAttempts:   cfg.Purchase.PickupCodeAttempts,
		Metrics:        purchaseMetrics,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create sale engine", err)
		os.Exit(1)
	}

	purchaseService, err := purchases.NewService(purchases.ServiceParams{
		Builder:   builder,
		Offers:    offerRepo,
		Staging:   stagingStore,
		Engine:    engine,
		TTL:       cfg.Purchase.StagingTTL,
		MaxOffers: cfg.Purchase.MaxOffersPerSale,
		Metrics:   purchaseMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create purchase service", err)
		os.Exit(1)
	}

	salesService, err := sales.NewService(saleRepo)
	if err != nil {
		logg.Error(ctx, "failed to create sales service", err)
		os.Exit(1)
	}

	directory, err := establishments.NewDirectory(establishmentRepo)
	if err != nil {
		logg.Error(ctx, "failed to create establishment directory", err)
		os.Exit(1)
	}

	pickupService, err := pickup.NewService(pickup.ServiceParams{
		DB:        dbClient,
		Sales:     saleRepo,
		Directory: directory,
		Outbox:    outboxService,
		Metrics:   purchaseMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create pickup service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"instance":        instance.GetID(),
		"staging_backend": cfg.Purchase.StagingBackend,
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DBPinger:       dbClient,
			RedisPinger:    redisClient,
			Idempotency:    redisClient,
			RateLimiter:    redisClient,
			Purchases:      purchaseService,
			Sales:          salesService,
			Pickup:         pickupService,
			Notifications:  notificationService,
			HTTPMetrics:    metrics.NewHTTPMetrics(registerer),
			MetricsHandler: metricsHandler,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}

func buildStagingStore(cfg *config.Config, redisClient *redis.Client) (staging.Store, error) {
	opts := []staging.Option{staging.WithGrace(cfg.Purchase.StagingGrace)}
	if cfg.Purchase.UsesMemoryStaging() {
		return staging.NewMemoryStore(opts...), nil
	}
	return staging.NewRedisStore(redisClient, opts...)
}
