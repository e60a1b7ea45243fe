package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/creditsales-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/creditsales-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/creditsales-ai-platform/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("conversation worker needs SQS; the API runs in-process workers with USE_MEMORY_QUEUE")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	conversationMetrics := metrics.NewConversationMetrics(registry)
	messagingMetrics := metrics.NewMessagingMetrics(registry)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		// Without Redis the per-customer lock is local to this process.
		logger.Warn("redis unavailable; customer locks are not shared across workers")
	}
	pool := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	sessionDB, err := bootstrap.OpenSessionDB(ctx, cfg)
	if err != nil {
		logger.Error("failed to open session database", "error", err)
		os.Exit(1)
	}

	alerts := bootstrap.BuildAlertService(cfg, awsConfig, logger)
	emitter, deliverer := bootstrap.BuildEmitter(cfg, pool, alerts, logger)

	orchestrator, err := bootstrap.BuildEligibility(ctx, cfg, emitter, conversationMetrics, logger)
	if err != nil && !errors.Is(err, eligibility.ErrNoProviders) {
		logger.Error("failed to configure credit providers", "error", err)
		os.Exit(1)
	}
	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to configure llm", "error", err)
		os.Exit(1)
	}

	deps := bootstrap.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Redis:     redisClient,
		SessionDB: sessionDB,
		LLM:       llmClient,
		Messenger: whatsapp.NewClient(whatsapp.ClientConfig{
			AccessToken:   cfg.WhatsAppAccessToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			BaseURL:       cfg.WhatsAppAPIBaseURL,
			APIVersion:    cfg.WhatsAppAPIVersion,
			MediaBaseURL:  cfg.WhatsAppMediaBaseURL,
		}),
		Emitter:             emitter,
		ConversationMetrics: conversationMetrics,
		MessagingMetrics:    messagingMetrics,
	}
	if orchestrator != nil {
		deps.Eligibility = orchestrator
	}
	if store := bootstrap.BuildSessionArchive(cfg, awsConfig, logger); store != nil {
		deps.Archiver = store
	}
	conv, err := bootstrap.BuildConversation(ctx, deps)
	if err != nil {
		logger.Error("failed to build conversation service", "error", err)
		os.Exit(1)
	}
	turns, err := bootstrap.BuildTurnQueue(cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to build turn queue", "error", err)
		os.Exit(1)
	}

	worker := turns.Worker(conv.Service, conversation.WithWorkerCount(cfg.WorkerCount))
	worker.Start(ctx)
	conv.Locks.StartSweeper(ctx, cfg.LockSweepInterval)
	if conv.Recovery != nil {
		conv.Recovery.Start(ctx, cfg.RecoveryInterval)
	}
	if deliverer != nil {
		go deliverer.Start(ctx)
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("conversation worker started", "workers", cfg.WorkerCount, "queue_url", cfg.ConversationQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pool != nil {
		pool.Close()
	}
	if sessionDB != nil {
		_ = sessionDB.Close()
	}
}
