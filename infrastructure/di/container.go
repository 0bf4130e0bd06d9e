package di

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"bibliotek/application/choreography"
	"bibliotek/application/commands"
	commandbus "bibliotek/application/commands/bus"
	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/application/queries"
	querybus "bibliotek/application/queries/bus"
	"bibliotek/application/services"
	domainconfig "bibliotek/domain/config"
	"bibliotek/infrastructure/config"
	"bibliotek/infrastructure/persistence/cache"
	"bibliotek/infrastructure/persistence/mongodb"
	"bibliotek/pkg/errors"
)

// Service selects which slice of the platform a binary runs.
type Service string

const (
	ServiceBooks        Service = "books"
	ServiceReservations Service = "reservations"
	ServiceWallets      Service = "wallets"
)

// Container holds one service's wired dependencies.
type Container struct {
	Config       *config.Config
	DomainConfig *domainconfig.DomainConfig
	Logger       *zap.Logger
	Registry     *prometheus.Registry

	EventStore ports.EventStore
	EventBus   ports.EventBus
	CommandBus *commandbus.CommandBus
	QueryBus   *querybus.QueryBus

	mongoClient *mongo.Client
	redisClient *redis.Client
}

// InitializeContainer wires the dependencies for one service: shared
// infrastructure first, then the service's repositories, projectors,
// choreography reactors and buses.
func InitializeContainer(ctx context.Context, cfg *config.Config, service Service) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	mongoClient, err := ProvideMongoClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := ProvideRegistry()
	upcaster := ProvideUpcasterRegistry()

	eventStore, err := mongodb.NewEventStore(ctx, mongoClient.Database(cfg.MongoDBNameEvent), upcaster, logger)
	if err != nil {
		return nil, err
	}

	eventBus, err := ProvideEventBus(ctx, cfg, upcaster, registry, logger)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:       cfg,
		DomainConfig: domainconfig.LoadDomainConfig(),
		Logger:       logger,
		Registry:     registry,
		EventStore:   eventStore,
		EventBus:     eventBus,
		CommandBus:   commandbus.NewCommandBus(),
		QueryBus:     querybus.NewQueryBus(),
		mongoClient:  mongoClient,
		redisClient:  ProvideRedisClient(cfg),
	}
	c.CommandBus.Use(commandbus.LoggingMiddleware(logger))

	switch service {
	case ServiceBooks:
		err = c.wireBooks()
	case ServiceReservations:
		err = c.wireReservations()
	case ServiceWallets:
		err = c.wireWallets()
	default:
		err = errors.NewInternalError("unknown service " + string(service))
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) wireBooks() error {
	db := c.mongoClient.Database(c.Config.MongoDBNameLibrary)
	var repo ports.ProjectionRepository[projections.BookReadModel] = mongodb.NewProjectionRepository[projections.BookReadModel](
		db, "books", errors.CodeBookNotFound, "book", c.Logger)

	if c.redisClient != nil {
		repo = cache.NewCachedRepository[projections.BookReadModel](
			repo, cache.NewRedisCache(c.redisClient), "book", cache.DefaultTTL, c.Logger)
	}

	if err := projections.NewBookProjector(repo, c.Logger).Register(c.EventBus); err != nil {
		return err
	}

	validator := choreography.NewBookValidator(repo, c.EventBus, !c.Config.IsProduction(), c.Logger)
	if err := validator.Register(c.EventBus); err != nil {
		return err
	}

	service := services.NewBookService(c.EventStore, c.EventBus, c.Logger)
	if err := commands.RegisterBookHandlers(c.CommandBus, service); err != nil {
		return err
	}
	return queries.RegisterBookHandlers(c.QueryBus, repo)
}

func (c *Container) wireReservations() error {
	db := c.mongoClient.Database(c.Config.MongoDBNameLibrary)
	repo := mongodb.NewProjectionRepository[projections.ReservationReadModel](
		db, "reservations", errors.CodeReservationNotFound, "reservation", c.Logger)

	if err := projections.NewReservationProjector(repo, c.Logger).Register(c.EventBus); err != nil {
		return err
	}

	service := services.NewReservationService(c.EventStore, c.EventBus, c.DomainConfig, c.Logger)
	flow := choreography.NewReservationFlow(service, repo, c.EventBus, c.DomainConfig, c.Logger)
	if err := flow.Register(c.EventBus); err != nil {
		return err
	}

	if err := commands.RegisterReservationHandlers(c.CommandBus, service); err != nil {
		return err
	}
	return queries.RegisterReservationHandlers(c.QueryBus, repo)
}

func (c *Container) wireWallets() error {
	db := c.mongoClient.Database(c.Config.MongoDBNameLibrary)
	repo := mongodb.NewProjectionRepository[projections.WalletReadModel](
		db, "wallets", errors.CodeWalletNotFound, "wallet", c.Logger)

	if err := projections.NewWalletProjector(repo, c.Logger).Register(c.EventBus); err != nil {
		return err
	}

	service := services.NewWalletService(c.EventStore, c.EventBus, repo, c.Logger)
	processor := choreography.NewPaymentProcessor(service, c.EventBus, c.Logger)
	if err := processor.Register(c.EventBus); err != nil {
		return err
	}

	if err := commands.RegisterWalletHandlers(c.CommandBus, service); err != nil {
		return err
	}
	return queries.RegisterWalletHandlers(c.QueryBus, repo)
}

// StartConsuming begins event delivery for this service.
func (c *Container) StartConsuming(ctx context.Context) error {
	return c.EventBus.StartConsuming(ctx)
}

// Shutdown releases infrastructure in reverse wiring order.
func (c *Container) Shutdown(ctx context.Context) {
	if err := c.EventBus.Shutdown(ctx); err != nil {
		c.Logger.Warn("event bus shutdown failed", zap.Error(err))
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.Logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := c.mongoClient.Disconnect(ctx); err != nil {
		c.Logger.Warn("mongodb disconnect failed", zap.Error(err))
	}
	_ = c.Logger.Sync()
}
