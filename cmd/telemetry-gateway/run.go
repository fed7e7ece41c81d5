package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fleet-track/internal/auth"
	"fleet-track/internal/common/config"
	"fleet-track/internal/common/db"
	"fleet-track/internal/fleet/repository"
	"fleet-track/internal/fleet/rmq"
	"fleet-track/internal/fleet/service"
	"fleet-track/internal/gateway"
)

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	pg, err := db.NewPostgres(ctx, cfg.DatabaseDSN(), cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("migrations applied")

	publisher, err := rmq.NewPublisher(cfg.RabbitMQURL(), cfg.RabbitMQ.Exchange)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer publisher.Close()

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	users := repository.NewUserRepository(pg.Pool)
	drivers := repository.NewDriverRepository(pg.Pool)
	vehicles := repository.NewVehicleRepository(pg.Pool)
	locations := repository.NewLocationRepository(pg.Pool)
	notifications := repository.NewNotificationRepository(pg.Pool)

	ingestor := service.NewIngestor(locations, vehicles, log)
	fleet := service.NewAggregator(users, drivers, vehicles, locations, notifications, log)

	gw := gateway.New(verifier, ingestor, fleet, publisher, log, cfg.Environment, cfg.Broadcast.Interval)
	if err := gw.Start(); err != nil {
		return fmt.Errorf("start broadcast scheduler: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Gateway.Namespace, gw.HandleWS)
	if cfg.Environment != "production" {
		// development convenience; real tokens come from the auth service
		mux.HandleFunc("/token", auth.TokenHandler(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("namespace", cfg.Gateway.Namespace).
			Msg("telemetry gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	gw.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
