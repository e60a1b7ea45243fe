package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/creditsales-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/creditsales-ai-platform/internal/aggregator"
	"github.com/wolfman30/creditsales-ai-platform/internal/api/router"
	"github.com/wolfman30/creditsales-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/creditsales-ai-platform/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/http/handlers"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const processedCacheSize = 10000

func main() {
	// Local runs read .env; in production the variables come from the task definition.
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting creditsales-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	metricsHandler, registry := setupMetrics()
	messagingMetrics := metrics.NewMessagingMetrics(registry)
	conversationMetrics := metrics.NewConversationMetrics(registry)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	pool := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	sessionDB, err := bootstrap.OpenSessionDB(ctx, cfg)
	if err != nil {
		logger.Error("failed to open session database", "error", err)
		os.Exit(1)
	}

	alerts := bootstrap.BuildAlertService(cfg, awsCfg, logger)
	emitter, deliverer := bootstrap.BuildEmitter(cfg, pool, alerts, logger)

	orchestrator, err := bootstrap.BuildEligibility(ctx, cfg, emitter, conversationMetrics, logger)
	if err != nil && !errors.Is(err, eligibility.ErrNoProviders) {
		logger.Error("failed to configure credit providers", "error", err)
		os.Exit(1)
	}
	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to configure llm", "error", err)
		os.Exit(1)
	}

	deps := bootstrap.Dependencies{
		Config:              cfg,
		Logger:              logger,
		Redis:               redisClient,
		SessionDB:           sessionDB,
		LLM:                 llmClient,
		Messenger:           newWhatsAppClient(cfg),
		Emitter:             emitter,
		ConversationMetrics: conversationMetrics,
		MessagingMetrics:    messagingMetrics,
	}
	if store := bootstrap.BuildSessionArchive(cfg, awsCfg, logger); store != nil {
		deps.Archiver = store
	}
	if orchestrator != nil {
		deps.Eligibility = orchestrator
	} else {
		logger.Warn("no credit providers configured; eligibility checks are disabled")
	}
	conv, err := bootstrap.BuildConversation(ctx, deps)
	if err != nil {
		logger.Error("failed to build conversation service", "error", err)
		os.Exit(1)
	}
	turns, err := bootstrap.BuildTurnQueue(cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build turn queue", "error", err)
		os.Exit(1)
	}

	agg := aggregator.New(cfg.AggregatorWindow, logger, aggregator.WithMetrics(conversationMetrics))
	adapter := whatsapp.NewAdapter(whatsapp.AdapterConfig{
		AppSecret:   cfg.WhatsAppAppSecret,
		VerifyToken: cfg.WhatsAppVerifyToken,
		Publisher:   turns.Publisher,
		Dedupe:      buildDeduper(pool),
		Buffer:      agg,
		Metrics:     messagingMetrics,
		Logger:      logger,
	})

	adminCfg := handlers.AdminConfig{
		Health:     eligibility.NewHealthTracker(),
		Sessions:   conv.Sessions,
		Parked:     conv.Parking,
		Turns:      turns.Jobs,
		Aggregator: agg,
		Logger:     logger,
	}
	if orchestrator != nil {
		adminCfg.Health = orchestrator.Health()
		adminCfg.Providers = orchestrator.ProviderNames()
	}

	r := router.New(&router.Config{
		Logger:          logger,
		WhatsApp:        adapter,
		Admin:           handlers.NewAdminHandler(adminCfg),
		AdminAuthSecret: cfg.AdminJWTSecret,
		AdminRateLimit:  cfg.AdminRateLimit,
		MetricsHandler:  metricsHandler,
		HealthChecks:    healthChecks(redisClient, pool),
	})

	// Background loops
	if deliverer != nil {
		go deliverer.Start(ctx)
	}
	conv.Locks.StartSweeper(ctx, cfg.LockSweepInterval)
	if conv.Recovery != nil {
		conv.Recovery.Start(ctx, cfg.RecoveryInterval)
	}
	var worker *conversation.Worker
	if turns.Memory {
		worker = turns.Worker(conv.Service, conversation.WithWorkerCount(cfg.WorkerCount))
		worker.Start(ctx)
		logger.Info("in-process conversation workers started", "count", cfg.WorkerCount)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Buffered fragments become turns before the workers stop.
	if n := agg.FlushAll(shutdownCtx); n > 0 {
		logger.Info("flushed pending fragments", "customers", n)
	}
	cancel()

	if worker != nil {
		waitCh := make(chan struct{})
		go func() {
			worker.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-shutdownCtx.Done():
			logger.Error("conversation worker shutdown timed out", "error", shutdownCtx.Err())
		}
	}
	closeClients(redisClient, pool, logger)
	if sessionDB != nil {
		_ = sessionDB.Close()
	}

	logger.Info("server stopped")
}

// setupMetrics builds a dedicated registry with the runtime collectors.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func newWhatsAppClient(cfg *appconfig.Config) *whatsapp.Client {
	return whatsapp.NewClient(whatsapp.ClientConfig{
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		MediaBaseURL:  cfg.WhatsAppMediaBaseURL,
	})
}

// buildDeduper prefers the Postgres processed-message table so duplicates
// are caught across replicas.
func buildDeduper(pool *pgxpool.Pool) whatsapp.Deduper {
	if pool != nil {
		return events.NewProcessedStore(pool)
	}
	return events.NewMemoryProcessedStore(processedCacheSize)
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}

func closeClients(redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed to close redis", "error", err)
		}
	}
	if pool != nil {
		pool.Close()
	}
}
