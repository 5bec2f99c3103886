package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tonswap/backend/internal/chains"
	"github.com/tonswap/backend/internal/chains/evmchain"
	"github.com/tonswap/backend/internal/chains/tonchain"
	"github.com/tonswap/backend/internal/config"
	"github.com/tonswap/backend/internal/db"
	"github.com/tonswap/backend/internal/events"
	"github.com/tonswap/backend/internal/repositories"
	"github.com/tonswap/backend/internal/resolver"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	orderRepo := repositories.NewOrderRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	executionRepo := repositories.NewExecutionRepo(pool)
	subscriber := events.NewRedisSubscriber(rdb, log)

	adapters := buildAdapters(ctx, cfg, log)
	if len(adapters) == 0 {
		log.Fatal("no chain adapters configured")
	}

	engine := resolver.NewEngine(resolver.Config{
		ResolverAddress:    cfg.ResolverAddress,
		MinProfitBPS:       cfg.MinProfitBPS,
		MinTimelockSeconds: cfg.MinTimelockSeconds,
		MaxRetries:         cfg.MaxRetries,
		RetryBaseDelay:     cfg.RetryBaseDelay,
	}, orderRepo, escrowRepo, executionRepo, adapters, log)

	if err := subscriber.Subscribe(ctx, events.StreamSwapEvents, func(n events.Notification) {
		engine.HandleNotification(ctx, n)
	}); err != nil {
		log.Fatal("subscribe failed", zap.Error(err))
	}

	log.Info("resolver started",
		zap.String("address", cfg.ResolverAddress),
		zap.Int("min_profit_bps", cfg.MinProfitBPS),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down resolver, draining in-flight swaps")
	cancel()
	engine.Wait()
}

func buildAdapters(ctx context.Context, cfg *config.Config, log *zap.Logger) map[string]chains.Adapter {
	adapters := make(map[string]chains.Adapter)

	if cfg.TONFactoryAddress != "" {
		ton, err := tonchain.New(ctx, tonchain.Config{
			Network:        cfg.TONNetworkID,
			TONNetwork:     cfg.TONNetwork,
			LiteServerHost: cfg.LiteServerHost,
			LiteServerPort: cfg.LiteServerPort,
			LiteServerKey:  cfg.LiteServerKey,
			FactoryAddress: cfg.TONFactoryAddress,
			WalletSeed:     cfg.TONWalletSeed,
		}, log)
		if err != nil {
			log.Fatal("ton adapter init failed", zap.Error(err))
		}
		adapters[cfg.TONNetworkID] = ton
	}

	if cfg.EVMFactoryAddress != "" {
		evm, err := evmchain.New(ctx, evmchain.Config{
			Network:        cfg.EVMNetworkID,
			RPCURL:         cfg.EVMRPCURL,
			ChainID:        cfg.EVMChainID,
			FactoryAddress: cfg.EVMFactoryAddress,
			PrivateKeyHex:  cfg.EVMPrivateKey,
		}, log)
		if err != nil {
			log.Fatal("evm adapter init failed", zap.Error(err))
		}
		adapters[cfg.EVMNetworkID] = evm
	}

	return adapters
}
