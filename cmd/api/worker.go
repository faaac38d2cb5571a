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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/provider-api/internal/config"
	"github.com/jwalitptl/provider-api/internal/handler"
	"github.com/jwalitptl/provider-api/internal/handler/health"
	"github.com/jwalitptl/provider-api/internal/repository"
	"github.com/jwalitptl/provider-api/internal/repository/postgres"
	"github.com/jwalitptl/provider-api/pkg/logger"
	"github.com/jwalitptl/provider-api/pkg/messaging"
	"github.com/jwalitptl/provider-api/pkg/messaging/redis"
	"github.com/jwalitptl/provider-api/pkg/metrics"
	"github.com/jwalitptl/provider-api/pkg/worker"
)

func newBroker(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	return redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log.Named("redis").Zerolog())
}

// startOutboxWorkers runs the processor and the cleanup loop until ctx ends.
func startOutboxWorkers(
	ctx context.Context,
	cfg *config.Config,
	repo repository.OutboxRepository,
	broker messaging.Broker,
	log *logger.Logger,
	m *metrics.Metrics,
) error {
	processor, err := worker.NewOutboxProcessor(repo, broker, worker.OutboxProcessorConfig{
		Channel:      cfg.Redis.Channel,
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		RetryDelay:   cfg.Outbox.RetryDelay,
	}, log, m)
	if err != nil {
		return err
	}
	cleanup := worker.NewOutboxCleanupWorker(repo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, log, m)

	go processor.Start(ctx)
	go cleanup.Start(ctx)
	return nil
}

func newWorkerCmd(configPath *string) *cobra.Command {
	var healthAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver outbox events to the broker without serving the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), cfg, healthAddr)
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", ":8081", "address for the health and metrics endpoints")
	return cmd
}

func runWorker(parent context.Context, cfg *config.Config, healthAddr string) error {
	if parent == nil {
		parent = context.Background()
	}
	log := newLogger(cfg).Named("worker").WithFields(map[string]interface{}{"worker_id": workerID()})

	startCtx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	db, err := postgres.NewDB(startCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	// Unlike serve, the worker is useless without a broker.
	broker, err := newBroker(startCtx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to event broker: %w", err)
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(metricsNamespace, registry)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startOutboxWorkers(ctx, cfg, postgres.NewOutboxRepository(db), broker, log, appMetrics); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(map[string]health.Pinger{
		"database": db,
		"redis":    health.PingFunc(broker.Ping),
	}).RegisterRoutes(&engine.RouterGroup)
	engine.GET("/metrics", handler.MetricsHandler(registry))

	srv := &http.Server{
		Addr:              healthAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting worker health server", "addr", healthAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("health server failed: %w", err)
	}
	log.Info("shutting down worker...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
