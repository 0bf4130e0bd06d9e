package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bibliotek/infrastructure/config"
	"bibliotek/infrastructure/di"
	"bibliotek/interfaces/http/rest"
	"bibliotek/pkg/common"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig("reservations")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg, di.ServiceReservations)
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		container.Shutdown(shutdownCtx)
	}()

	if err := container.StartConsuming(ctx); err != nil {
		container.Logger.Fatal("failed to start consuming", zap.Error(err))
	}

	router := rest.NewRouter(cfg, container.CommandBus, container.QueryBus,
		container.EventStore, container.EventBus, container.Registry,
		common.PaginationDefaults{
			DefaultLimit: container.DomainConfig.PaginationDefaultLimit,
			MaxLimit:     container.DomainConfig.PaginationMaxLimit,
		}, container.Logger)

	handler, err := router.Setup(router.MountReservations)
	if err != nil {
		container.Logger.Fatal("failed to set up router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		container.Logger.Info("starting reservations service",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("server shutdown error", zap.Error(err))
	}
}
