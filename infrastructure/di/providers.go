package di

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bibliotek/domain/events"
	"bibliotek/infrastructure/config"
	"bibliotek/infrastructure/messaging/rabbitmq"
	"bibliotek/pkg/errors"
)

// ProvideLogger builds the service logger. Production gets JSON sampling
// output, everything else the development console encoder.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build(zap.Fields(zap.String("service", cfg.ServiceName)))
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// ProvideMongoClient connects to MongoDB and verifies the connection.
func ProvideMongoClient(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to connect to mongodb", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "mongodb unreachable", err)
	}
	return client, nil
}

// ProvideRedisClient returns nil when no address is configured; callers fall
// back to in-process equivalents.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// ProvideRegistry builds the metrics registry with the standard process and
// Go collectors.
func ProvideRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// ProvideUpcasterRegistry holds the event schema migrations. Empty today;
// upcasters are registered here as payloads evolve.
func ProvideUpcasterRegistry() *events.UpcasterRegistry {
	return events.NewUpcasterRegistry()
}

// ProvideEventBus builds the broker-backed bus and declares its topology.
func ProvideEventBus(ctx context.Context, cfg *config.Config, upcaster *events.UpcasterRegistry, registry *prometheus.Registry, logger *zap.Logger) (*rabbitmq.EventBus, error) {
	metrics := rabbitmq.NewMetrics(registry, cfg.ServiceName)
	bus := rabbitmq.NewEventBus(cfg, upcaster, metrics, logger)
	if err := bus.Init(ctx); err != nil {
		return nil, err
	}
	return bus, nil
}
