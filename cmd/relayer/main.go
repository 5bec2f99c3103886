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
	"github.com/tonswap/backend/internal/relayer"
	"github.com/tonswap/backend/internal/repositories"
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
	publisher := events.NewRedisPublisher(rdb, log)
	cursors := relayer.NewRedisCursorStore(rdb)

	adapters := buildAdapters(ctx, cfg, log)
	if len(adapters) == 0 {
		log.Fatal("no chain adapters configured")
	}

	monitor := relayer.NewMonitor(relayer.Config{
		PollInterval: cfg.PollInterval,
		ScanInterval: cfg.ScanInterval,
	}, orderRepo, escrowRepo, adapters, publisher, cursors, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down relayer")
		cancel()
	}()

	log.Info("relayer started", zap.Int("chains", len(adapters)))
	monitor.Run(ctx)
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
