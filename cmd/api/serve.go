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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/provider-api/internal/config"
	authHandler "github.com/jwalitptl/provider-api/internal/handler/auth"
	"github.com/jwalitptl/provider-api/internal/handler/dashboard"
	"github.com/jwalitptl/provider-api/internal/handler/health"
	"github.com/jwalitptl/provider-api/internal/handler/member"
	"github.com/jwalitptl/provider-api/internal/handler/message"
	"github.com/jwalitptl/provider-api/internal/handler/provider"
	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository/postgres"
	"github.com/jwalitptl/provider-api/internal/router"
	authService "github.com/jwalitptl/provider-api/internal/service/auth"
	dashboardService "github.com/jwalitptl/provider-api/internal/service/dashboard"
	memberService "github.com/jwalitptl/provider-api/internal/service/member"
	messageService "github.com/jwalitptl/provider-api/internal/service/message"
	providerService "github.com/jwalitptl/provider-api/internal/service/provider"
	"github.com/jwalitptl/provider-api/pkg/logger"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

const metricsNamespace = "provider_api"

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadConfig()
}

func newLogger(cfg *config.Config) *logger.Logger {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})
	log.SetGlobal()
	return log
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log := newLogger(cfg)

	startCtx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	db, err := postgres.NewDB(startCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(metricsNamespace, registry)

	// Events go to the outbox; without Redis they wait there and readiness reports it.
	checks := map[string]health.Pinger{"database": db}
	outboxRepo := postgres.NewOutboxRepository(db)

	workerCtx, stopWorkers := context.WithCancel(parent)
	defer stopWorkers()

	broker, err := newBroker(startCtx, cfg, log)
	if err != nil {
		log.Warn(err, "event broker unavailable, events stay in the outbox")
	} else {
		defer broker.Close()
		checks["redis"] = health.PingFunc(broker.Ping)
		if cfg.Outbox.RunInAPI {
			if err := startOutboxWorkers(workerCtx, cfg, outboxRepo, broker, log, appMetrics); err != nil {
				return err
			}
		}
	}

	// Repositories
	memberRepo := postgres.NewMemberRepository(db)
	providerRepo := postgres.NewProviderRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	apiKeyRepo := postgres.NewAPIKeyRepository(db)

	// Services
	jwtValidator := authService.NewJWTValidator(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	validator := authService.NewChain(map[model.CredentialScheme]authService.Validator{
		model.SchemeBearer: jwtValidator,
		model.SchemeAPIKey: authService.NewAPIKeyValidator(apiKeyRepo),
	})
	providerSvc := providerService.NewService(providerRepo, appMetrics, log)
	memberSvc := memberService.NewService(memberRepo, providerSvc, memberService.Options{
		CacheTTL:        cfg.Cache.MemberTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Metrics:         appMetrics,
	})
	dashboardSvc := dashboardService.NewService(memberSvc, cfg.Dashboard)
	messageSvc := messageService.NewService(messageRepo, memberSvc, appMetrics, log)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}

	var auditLogger *zerolog.Logger
	if cfg.Log.Audit {
		auditLogger = log.Named("audit").Zerolog()
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(validator),
		health.NewHandler(checks),
		[]router.Handler{
			member.NewHandler(memberSvc),
			dashboard.NewHandler(dashboardSvc),
			message.NewHandler(messageSvc),
			provider.NewHandler(providerSvc),
			authHandler.NewHandler(jwtValidator),
		},
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			IPRateLimit:      rate.Limit(cfg.RateLimit.IPRequestsPerSecond),
			IPBurst:          cfg.RateLimit.IPBurst,
			RequestTimeout:   cfg.Server.RequestTimeout(),
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
			CORSConfig:       corsConfig,
			Compress:         cfg.Server.Gzip,
			AuditLogger:      auditLogger,
			Metrics:          appMetrics,
			Gatherer:         registry,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info("shutting down server...")
	stopWorkers()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited properly")
	return nil
}
