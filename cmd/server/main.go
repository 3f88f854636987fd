package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/auth"
	"gemini-synapse/internal/config"
	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/credential"
	"gemini-synapse/internal/logging"
	"gemini-synapse/internal/monitoring/tracing"
	"gemini-synapse/internal/proxy"
	"gemini-synapse/internal/scheduler"
	"gemini-synapse/internal/server"
	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/store"
	"gemini-synapse/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("server exited with error")
	}
}

func run() error {
	cfg := config.FromEnv()

	if err := logging.Setup(cfg.Debug, cfg.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx)
	if err != nil {
		log.WithError(err).Warn("tracing initialization failed, continuing without traces")
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	registry := settings.NewRegistry(st)
	if err := registry.Seed(ctx, cfg); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	pool := credential.NewPool(st, registry)
	if err := pool.SeedFromEnv(ctx, cfg.GoogleAPIKeys); err != nil {
		return fmt.Errorf("seed credentials: %w", err)
	}
	if err := pool.Prewarm(ctx); err != nil {
		log.WithError(err).Warn("failed to prewarm credential queue")
	}

	urls := upstream.NewURLBuilder(registry)
	validator := upstream.NewValidator(urls, nil)
	engine := proxy.NewEngine(pool, registry, urls, nil)
	gate := auth.NewGate(st, registry)

	sched := scheduler.New(st, registry, pool, validator, gate)
	registry.OnRestart(sched.Restart)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := server.New(cfg, server.Dependencies{
		Store:     st,
		Settings:  registry,
		Pool:      pool,
		Validator: validator,
		Engine:    engine,
		Gate:      gate,
		Scheduler: sched,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           srv.BuildEngine(),
		ReadHeaderTimeout: constants.ServerReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown did not complete")
	}

	sched.Stop()

	if shutdownTracing != nil {
		tracingCtx, cancelTracing := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelTracing()
		if err := shutdownTracing(tracingCtx); err != nil {
			log.WithError(err).Warn("tracing shutdown failed")
		}
	}

	log.Info("shutdown complete")
	return nil
}
