package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftfolio/craftfolio/adapter/cli"
	domainspersistence "github.com/craftfolio/craftfolio/internal/domains/infrastructure/persistence"
	routingapp "github.com/craftfolio/craftfolio/internal/routing/application"
	routingpersistence "github.com/craftfolio/craftfolio/internal/routing/infrastructure/persistence"
	voucherapp "github.com/craftfolio/craftfolio/internal/vouchers/application"
	voucherpersistence "github.com/craftfolio/craftfolio/internal/vouchers/infrastructure/persistence"
	"github.com/craftfolio/craftfolio/pkg/config"
	"github.com/craftfolio/craftfolio/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	cli.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Commands degrade to a helpful error when the database is out of
	// reach, so a failed connection is not fatal here.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err == nil {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.Warn("database unreachable", "error", pingErr)
			pool.Close()
			pool = nil
		}
	} else {
		logger.Warn("database configuration invalid", "error", err)
		pool = nil
	}
	if pool != nil {
		defer pool.Close()
		cli.SetApp(&cli.App{
			Records:    domainspersistence.NewPostgresDomainRepository(pool),
			Routes:     routingapp.NewService(routingpersistence.NewPostgresRouteRepository(pool), logger, nil),
			Portfolios: domainspersistence.NewPostgresPortfolioResolver(pool),
			Vouchers: voucherapp.NewService(
				voucherpersistence.NewPostgresCatalogRepository(pool),
				voucherpersistence.NewPostgresGrantRepository(pool),
				logger,
				nil,
			),
		})
	}

	cli.Execute(ctx)
}
