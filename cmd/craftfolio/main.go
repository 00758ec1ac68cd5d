package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craftfolio/craftfolio/adapter/api"
	checkoutapp "github.com/craftfolio/craftfolio/internal/checkout/application"
	checkoutpersistence "github.com/craftfolio/craftfolio/internal/checkout/infrastructure/persistence"
	"github.com/craftfolio/craftfolio/internal/checkout/infrastructure/stripepay"
	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	domainspersistence "github.com/craftfolio/craftfolio/internal/domains/infrastructure/persistence"
	"github.com/craftfolio/craftfolio/internal/hosting"
	"github.com/craftfolio/craftfolio/internal/pricing"
	"github.com/craftfolio/craftfolio/internal/registrar"
	routingapp "github.com/craftfolio/craftfolio/internal/routing/application"
	routingpersistence "github.com/craftfolio/craftfolio/internal/routing/infrastructure/persistence"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/eventbus"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/locking"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/migrations"
	voucherapp "github.com/craftfolio/craftfolio/internal/vouchers/application"
	voucherpersistence "github.com/craftfolio/craftfolio/internal/vouchers/infrastructure/persistence"
	"github.com/craftfolio/craftfolio/pkg/config"
	"github.com/craftfolio/craftfolio/pkg/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting craftfolio")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Redis: price list cache and cross-instance fulfillment claims
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	var (
		priceCache pricing.PriceListCache
		claimer    locking.Claimer
	)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("redis not available, using in-process fallbacks", "error", err)
			priceCache = pricing.NewMemoryCache(cfg.PriceListTTL, nil)
			claimer = locking.NoopClaimer{}
		} else {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
	} else {
		priceCache = pricing.NewRedisCache(redisClient, cfg.PriceListTTL)
		claimer = locking.NewRedisClaimer(redisClient, "fulfillment")
	}

	// Event publisher
	var publisher eventbus.Publisher
	rabbitPublisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			publisher = eventbus.NewNoopPublisher(logger)
		} else {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
	} else {
		publisher = rabbitPublisher
		defer rabbitPublisher.Close()
	}

	// Upstream clients, each behind a circuit breaker
	registrarHTTP, err := registrar.NewHTTPClient(cfg.RegistrarBaseURL, cfg.RegistrarAPIKey, cfg.RegistrarAPISecret)
	if err != nil {
		logger.Error("invalid registrar configuration", "error", err)
		os.Exit(1)
	}
	registrarClient := registrar.NewBreakerClient(registrarHTTP, registrar.DefaultBreakerConfig())

	hostingHTTP, err := hosting.NewHTTPClient(cfg.HostingBaseURL, cfg.HostingProjectID, cfg.HostingToken)
	if err != nil {
		logger.Error("invalid hosting configuration", "error", err)
		os.Exit(1)
	}
	hostingClient := hosting.NewBreakerClient(hostingHTTP, hosting.DefaultBreakerConfig())

	flatRetail, err := decimal.NewFromString(cfg.FlatRetailPrice)
	if err != nil {
		logger.Error("invalid PRICING_FLAT_RETAIL_PRICE", "error", err)
		os.Exit(1)
	}
	markup, err := decimal.NewFromString(cfg.FixedMarkup)
	if err != nil {
		logger.Error("invalid PRICING_FIXED_MARKUP", "error", err)
		os.Exit(1)
	}

	metrics := observability.NewPrometheusMetrics()

	// Application services
	pricingEngine := pricing.NewEngine(registrarClient, priceCache, pricing.Config{
		FlatRetailPrice: flatRetail,
		FixedMarkup:     markup,
	}, logger)

	voucherService := voucherapp.NewService(
		voucherpersistence.NewPostgresCatalogRepository(pool),
		voucherpersistence.NewPostgresGrantRepository(pool),
		logger,
		nil,
	)

	routingService := routingapp.NewService(routingpersistence.NewPostgresRouteRepository(pool), logger, nil)

	domainRepo := domainspersistence.NewPostgresDomainRepository(pool)
	saga := domainsapp.NewSaga(domainsapp.SagaDeps{
		Records:    domainRepo,
		Registrar:  registrarClient,
		Hosting:    hostingClient,
		Routes:     routingService,
		Vouchers:   voucherService,
		Portfolios: domainspersistence.NewPostgresPortfolioResolver(pool),
		Bus:        publisher,
		Claims:     claimer,
		ClaimTTL:   cfg.FulfillmentClaimTTL,
		Logger:     logger,
	})
	domainService := domainsapp.NewService(domainRepo, hostingClient, publisher, logger)

	// React to portfolio publishes so domains bought before the user's
	// first publish still get routed.
	if _, ok := publisher.(*eventbus.RabbitMQPublisher); ok {
		consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:    cfg.RabbitMQURL,
			Logger: logger,
		}, eventbus.NewConsumerRegistry(logger))
		if err != nil {
			logger.Error("failed to connect event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		consumer.RegisterConsumer(domainsapp.NewPortfolioPublishedConsumer(domainRepo, routingService, logger))
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", "error", err)
			}
		}()
	}

	stripeProvider := stripepay.NewProvider(stripepay.Config{
		APIKey:        cfg.StripeAPIKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	})
	orchestrator := checkoutapp.NewOrchestrator(
		pricingEngine, voucherService, stripeProvider, saga, cfg.CheckoutSuccessURL, logger,
	)
	webhookProcessor := checkoutapp.NewWebhookProcessor(
		stripepay.NewVerifier(cfg.StripeWebhookSecret),
		checkoutpersistence.NewPostgresEventStore(pool),
		saga,
		logger,
	)

	handler := api.NewDomainsHandler(api.DomainsHandlerConfig{
		Quoter:   pricingEngine,
		Checkout: orchestrator,
		Webhooks: webhookProcessor,
		Domains:  domainService,
		Routes:   routingService,
		Auth:     api.NewHMACTokenVerifier(cfg.AuthTokenSecret),
		Metrics:  metrics,
		Logger:   logger,
	})

	health := observability.NewHealthRegistry()
	health.Register("postgres", observability.DatabaseHealthChecker(pool.Ping))
	health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.HTTPAddr
	server := api.NewServer(serverCfg, handler, metrics.Handler(), health, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("craftfolio stopped")
}
