// Command cdc-worker runs a single arangocdc.Consumer against one
// ArangoDB-style replication log and republishes every dispatched
// document operation onto NATS JetStream for downstream services.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/arc-self/arangodb-cdc/arangocdc"
	"github.com/arc-self/arangodb-cdc/internal/config"
	"github.com/arc-self/arangodb-cdc/internal/credentials"
	"github.com/arc-self/arangodb-cdc/internal/natsclient"
	"github.com/arc-self/arangodb-cdc/internal/outbox"
	"github.com/arc-self/arangodb-cdc/internal/telemetry"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// --- Graceful shutdown context ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Vault credentials ---
	vaultManager, err := credentials.NewSecretManager(cfg.VaultAddr, cfg.VaultToken)
	if err != nil {
		logger.Fatal("vault connection failed", zap.Error(err))
	}
	creds, err := vaultManager.ArangoCredentials(cfg.VaultSecretPath)
	if err != nil {
		logger.Fatal("failed to load ArangoDB credentials from vault", zap.Error(err))
	}

	// --- NATS JetStream sink ---
	natsClient, err := natsclient.NewClient(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer natsClient.Close()

	if err := natsClient.ProvisionStreams(); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}
	sink := outbox.NewNATSSink(natsClient, logger)

	// --- Optional OpenTelemetry metrics ---
	var metrics arangocdc.Metrics
	if cfg.OTLPEndpoint != "" {
		mp, err := telemetry.InitMeterProvider(ctx, "arangodb-cdc", cfg.OTLPEndpoint)
		if err != nil {
			logger.Fatal("failed to init meter provider", zap.Error(err))
		}
		defer mp.Shutdown(ctx)

		cdcMetrics, err := telemetry.NewCDCMetrics(mp)
		if err != nil {
			logger.Fatal("failed to create CDC metrics instruments", zap.Error(err))
		}
		metrics = cdcMetrics
	}

	// --- Consumer ---
	opts := []arangocdc.Option{
		arangocdc.WithLogger(logger),
		arangocdc.WithIdleDelay(cfg.IdleDelay),
	}
	if metrics != nil {
		opts = append(opts, arangocdc.WithMetrics(metrics))
	}

	consumer := arangocdc.NewAuth(cfg.Host, cfg.Database, creds, opts...)

	arangocdc.Subscribe(consumer, arangocdc.InsertOrReplace, sink, outbox.PublishInsertOrReplace)
	arangocdc.Subscribe(consumer, arangocdc.Remove, sink, outbox.PublishRemove)

	if err := consumer.Init(ctx); err != nil {
		logger.Fatal("failed to initialize replication cursor", zap.Error(err))
	}
	logger.Info("cdc-worker started",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("tick", consumer.Tick()),
	)

	for {
		if ctx.Err() != nil {
			logger.Info("cdc-worker shutting down gracefully")
			return
		}

		if err := consumer.Listen(ctx); err != nil {
			if ctx.Err() != nil {
				continue // shutdown raced the in-flight request; loop exits above
			}
			logger.Error("listen cycle failed, retrying from the same tick",
				zap.String("tick", consumer.Tick()), zap.Error(err))
		}
	}
}
