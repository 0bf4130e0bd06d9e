package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bibliotek/application/commands/bus"
	"bibliotek/application/ports"
	querybus "bibliotek/application/queries/bus"
	"bibliotek/infrastructure/config"
	"bibliotek/interfaces/http/rest/handlers"
	"bibliotek/interfaces/http/rest/middleware"
	"bibliotek/pkg/auth"
	"bibliotek/pkg/common"
	"bibliotek/pkg/observability"
)

// Router assembles one service's HTTP surface. Which resource routes are
// mounted depends on the service this binary runs as.
type Router struct {
	cfg        *config.Config
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	store      ports.EventStore
	eventBus   ports.EventBus
	registry   *prometheus.Registry
	logger     *zap.Logger
	pagination common.PaginationDefaults
}

// NewRouter creates a router for one service.
func NewRouter(cfg *config.Config, commandBus *bus.CommandBus, queryBus *querybus.QueryBus, store ports.EventStore, eventBus ports.EventBus, registry *prometheus.Registry, pagination common.PaginationDefaults, logger *zap.Logger) *Router {
	return &Router{
		cfg:        cfg,
		commandBus: commandBus,
		queryBus:   queryBus,
		store:      store,
		eventBus:   eventBus,
		registry:   registry,
		logger:     logger,
		pagination: pagination,
	}
}

// Setup builds the handler with global middleware, health and metrics
// endpoints, and the routes added by mount.
func (rt *Router) Setup(mount func(chi.Router)) (http.Handler, error) {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.cfg.EnableMetrics && rt.registry != nil {
		router.Use(observability.NewHTTPMetrics(rt.registry, rt.cfg.ServiceName).Middleware)
	}

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.cfg.EnableMetrics && rt.registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: rt.cfg.JWTSecret,
		Issuer:    rt.cfg.JWTIssuer,
	})
	if err != nil {
		return nil, err
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(middleware.AuthOptions{
			Validator:   validator,
			IPLimiter:   auth.NewIPRateLimiter(100),
			UserLimiter: auth.NewUserRateLimiter(200),
			Logger:      rt.logger,
		}))
		mount(r)
	})

	return router, nil
}

// MountBooks adds the catalog routes. Mutations need the librarian role.
func (rt *Router) MountBooks(r chi.Router) {
	handler := handlers.NewBookHandler(rt.commandBus, rt.queryBus, rt.pagination, rt.logger)
	r.Route("/books", func(r chi.Router) {
		r.Get("/", handler.ListBooks)
		r.Get("/{bookID}", handler.GetBook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("librarian"))
			r.Post("/", handler.CreateBook)
			r.Put("/{bookID}", handler.UpdateBook)
			r.Put("/{bookID}/price", handler.SetRetailPrice)
			r.Delete("/{bookID}", handler.DeleteBook)
		})
	})
}

// MountReservations adds the reservation routes.
func (rt *Router) MountReservations(r chi.Router) {
	handler := handlers.NewReservationHandler(rt.commandBus, rt.queryBus, rt.pagination, rt.logger)
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", handler.CreateReservation)
		r.Get("/", handler.ListReservations)
		r.Get("/{reservationID}", handler.GetReservation)
		r.Post("/{reservationID}/cancel", handler.CancelReservation)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("librarian"))
			r.Post("/{reservationID}/borrow", handler.BorrowReservation)
			r.Post("/{reservationID}/late", handler.MarkLate)
			r.Post("/{reservationID}/return", handler.ReturnReservation)
		})
	})
}

// MountWallets adds the wallet routes.
func (rt *Router) MountWallets(r chi.Router) {
	handler := handlers.NewWalletHandler(rt.commandBus, rt.queryBus, rt.logger)
	r.Route("/wallets", func(r chi.Router) {
		r.Post("/", handler.CreateWallet)
		r.Get("/me", handler.GetOwnWallet)
		r.Get("/{walletID}", handler.GetWallet)
		r.Post("/{walletID}/deposit", handler.Deposit)
	})
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck reports DOWN when either the event store or the broker is
// unreachable.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	store := rt.store.CheckHealth(r.Context())
	busHealth := rt.eventBus.CheckHealth(r.Context())

	status := http.StatusOK
	overall := ports.HealthUp
	if store.Status != ports.HealthUp || busHealth.Status != ports.HealthUp {
		status = http.StatusServiceUnavailable
		overall = ports.HealthDown
	}

	common.RespondJSON(w, status, map[string]interface{}{
		"status":     overall,
		"eventStore": store,
		"eventBus":   busHealth,
	})
}
