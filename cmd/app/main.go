package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-platform/internal/config"
	notifyAdapters "payment-platform/internal/infra/adapters/notify"
	payAdapters "payment-platform/internal/infra/adapters/payment"
	pg "payment-platform/internal/infra/db/postgres"
	"payment-platform/internal/infra/logging"
	"payment-platform/internal/infra/metrics"
	red "payment-platform/internal/infra/redis"
	"payment-platform/internal/infra/sched"
	"payment-platform/internal/infra/web"
	"payment-platform/internal/infra/worker"
	"payment-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("development mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer func() { _ = redisClient.Close() }()
	dedupGuard := red.NewIdempotencyGuard(redisClient)

	// ---- Event workers + notifications ----
	workerPool := worker.NewPool(cfg.Server.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()
	notifier := notifyAdapters.NewRedisNotifier(redisClient, workerPool, logger)

	// ---- Processors ----
	orch := payAdapters.NewOrchestrator(cfg.Orchestrator.HealthCooldown, logger)
	breakerCfg := breakerConfig(cfg)

	if cfg.Providers.Stripe.Enabled {
		sp, err := payAdapters.NewStripeProcessor(cfg.Providers.Stripe.APIKey, cfg.Providers.Stripe.WebhookSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("stripe processor")
		}
		orch.Register(payAdapters.NewResilientProcessor(sp, breakerCfg), cfg.Providers.Stripe.Priority, true)
	}
	if cfg.Providers.ZarinPal.Enabled {
		zc := cfg.Providers.ZarinPal
		zp, err := payAdapters.NewZarinPalProcessor(zc.MerchantID, zc.CallbackURL, zc.WebhookSecret, zc.Sandbox)
		if err != nil {
			logger.Fatal().Err(err).Msg("zarinpal processor")
		}
		if zc.AccessToken != "" {
			zp.SetRefundAuth(zc.AccessToken, "")
		}
		orch.Register(payAdapters.NewResilientProcessor(zp, breakerCfg), zc.Priority, true)
	}
	if len(orch.ProcessorNames()) == 0 {
		logger.Fatal().Msg("no payment processor enabled: set providers.stripe or providers.zarinpal in the config")
	}
	logger.Info().Strs("processors", orch.ProcessorNames()).Msg("processors registered")

	// ---- Repositories ----
	payRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)
	reconRepo := pg.NewReconciliationRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(payRepo, orch, notifier, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, orch, logger)
	webhookUC := usecase.NewWebhookUseCase(payRepo, subRepo, eventRepo, txManager, dedupGuard, notifier, cfg.Redis.DedupTTL, logger)
	reconUC := usecase.NewReconciliationUseCase(payRepo, reconRepo, orch, cfg.Reconciliation.PageSize, cfg.Reconciliation.MaxPages, logger)

	// ---- HTTP server ----
	srv := web.NewServer(paymentUC, subUC, webhookUC, reconUC, orch, orch, web.NewAuth(cfg.Auth.JWTSecret), logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Daily reconciliation ----
	if cfg.Reconciliation.Enabled {
		scheduler := sched.NewReconciliationScheduler(reconUC, orch.ProcessorNames, cfg.Reconciliation.RunAt, cfg.Reconciliation.Timeout, logger)
		go func() { _ = scheduler.Run(ctx) }()
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}

// breakerConfig maps the YAML breaker section onto the adapter's defaults,
// keeping any field the operator left unset.
func breakerConfig(cfg *config.Config) payAdapters.BreakerConfig {
	bc := payAdapters.DefaultBreakerConfig()
	b := cfg.Orchestrator.Breaker
	if b.ErrorRateThreshold > 0 {
		bc.ErrorRateThreshold = b.ErrorRateThreshold
	}
	if b.MinRequests > 0 {
		bc.MinRequests = b.MinRequests
	}
	if b.Interval > 0 {
		bc.Interval = b.Interval
	}
	if b.ResetTimeout > 0 {
		bc.ResetTimeout = b.ResetTimeout
	}
	if b.CallTimeout > 0 {
		bc.CallTimeout = b.CallTimeout
	}
	return bc
}
