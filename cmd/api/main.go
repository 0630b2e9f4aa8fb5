package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/qikhub/walletledger/internal/address"
	"github.com/qikhub/walletledger/internal/config"
	"github.com/qikhub/walletledger/internal/infra"
	"github.com/qikhub/walletledger/internal/keys"
	"github.com/qikhub/walletledger/internal/logging"
	"github.com/qikhub/walletledger/internal/notification"
	"github.com/qikhub/walletledger/internal/payments"
	"github.com/qikhub/walletledger/internal/routes"
	"github.com/qikhub/walletledger/internal/server"
	"github.com/qikhub/walletledger/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, idempotency keys are not enforced")
	}

	notifiers := notification.Multi{notification.NewLoggerNotifier(logger)}
	if cfg.AMQPURL != "" {
		conn, ch, err := infra.NewAMQPChannel(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("connect amqp", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		defer ch.Close()
		notifiers = append(notifiers, notification.NewAMQPNotifier(ch, cfg.AMQPExchange))
	}

	custodian, err := newCustodian(cfg, logger)
	if err != nil {
		logger.Error("key custody", "error", err)
		os.Exit(1)
	}

	store, err := newSnapshotStore(ctx, cfg, db, cache)
	if err != nil {
		logger.Error("snapshot store", "error", err)
		os.Exit(1)
	}

	ledger := payments.NewService(address.New(cfg.ServiceID), custodian, notifiers, logger)

	srv, err := server.New(cfg, routes.Deps{
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		Ledger:    ledger,
		Snapshots: store,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	if err := srv.Restore(ctx); err != nil {
		logger.Error("restore ledger", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

func newCustodian(cfg config.Config, logger *slog.Logger) (keys.Custodian, error) {
	if cfg.MasterKey != nil {
		return keys.NewSecretboxCustodian(cfg.MasterKey)
	}
	// Only reachable in development; Load insists on a master key elsewhere.
	logger.Warn("KEY_MASTER_SECRET not set, sealing keys with an ephemeral master key")
	return keys.NewEphemeralCustodian()
}

func newSnapshotStore(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotRedis:
		return snapshot.NewRedisStore(cache, snapshot.DefaultRedisKey), nil
	case config.SnapshotPostgres:
		store := snapshot.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return snapshot.NewMemoryStore(), nil
	}
}
