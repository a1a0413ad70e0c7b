package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classifieds-listing-core/internal/config"
	pg "classifieds-listing-core/internal/infra/db/postgres"
	"classifieds-listing-core/internal/infra/logging"
	"classifieds-listing-core/internal/infra/metrics"
	red "classifieds-listing-core/internal/infra/redis"
	"classifieds-listing-core/internal/infra/sched"
	"classifieds-listing-core/internal/infra/web"
	"classifieds-listing-core/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (relaxed validation, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	listingRepo := pg.NewPostgresListingRepo(pool)
	subRepo := pg.NewPostgresSubscriptionRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient, cfg.Redis.TTL)
	userRepo := pg.NewPostgresUserRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Use cases ----
	clock := clockwork.NewRealClock()
	notifier := red.NewPubSubNotifier(redisClient, logger)
	quotaUC := usecase.NewQuotaUseCase(listingRepo, subRepo, planRepo, userRepo, tm, notifier, clock, cfg.Quota.ConsumeTimeout, logger)
	featureUC := usecase.NewFeatureUseCase(listingRepo, subRepo, notifier, clock, logger)
	rankingUC := usecase.NewRankingUseCase(clock, logger)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.API.AdminSecret, cfg.API.SecureCookie, cfg.API.CookieDomain, cfg.API.SessionTTL)
	srv := web.NewServer(quotaUC, featureUC, rankingUC, listingRepo, subRepo, auth, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", srv.Router())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Background jobs ----
	sweeper := sched.NewFeatureSweepWorker(cfg.Scheduler.FeatureSweepInterval, featureUC, logger)
	go func() { _ = sweeper.Run(ctx) }()

	expiryJob := sched.NewSubscriptionExpiryJob(subRepo, clock, logger)
	cronRunner, err := expiryJob.Schedule(ctx, cfg.Scheduler.SubscriptionExpiry)
	if err != nil {
		logger.Fatal().Err(err).Msg("subscription expiry schedule")
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	cancel()
	cronRunner.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
