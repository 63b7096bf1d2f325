package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/alert"
	"github.com/NeuralTrust/TrustShield/pkg/behavior"
	"github.com/NeuralTrust/TrustShield/pkg/config"
	"github.com/NeuralTrust/TrustShield/pkg/cooldown"
	"github.com/NeuralTrust/TrustShield/pkg/engine"
	handlers "github.com/NeuralTrust/TrustShield/pkg/handlers/http"
	"github.com/NeuralTrust/TrustShield/pkg/infra/database"
	"github.com/NeuralTrust/TrustShield/pkg/infra/httpx"
	infraLogger "github.com/NeuralTrust/TrustShield/pkg/infra/logger"
	"github.com/NeuralTrust/TrustShield/pkg/infra/repository"
	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/NeuralTrust/TrustShield/pkg/middleware"
	"github.com/NeuralTrust/TrustShield/pkg/paymentguard"
	"github.com/NeuralTrust/TrustShield/pkg/penaltybox"
	"github.com/NeuralTrust/TrustShield/pkg/reputation"
	"github.com/NeuralTrust/TrustShield/pkg/scorer"
	"github.com/NeuralTrust/TrustShield/pkg/server"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const sweepInterval = 10 * time.Minute

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger()

	if err := config.Load("./config"); err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	sharedStore := buildStore(cfg, logger)

	registry := cooldown.NewRegistry(sharedStore, logger, nil)
	repCache := buildReputation(cfg, sharedStore, logger)
	sc := scorer.NewScorer(cfg.Scorer, repCache, logger)
	box := penaltybox.NewBox(sharedStore, cfg.PenaltyBox, logger, nil)
	analyzer := behavior.NewAnalyzer(sharedStore, cfg.Behavior, logger, nil)

	var audit *repository.AuditRepository
	var banSink engine.BanSink
	if cfg.Database.Host != "" {
		db, err := database.NewDB(logger, &cfg.Database)
		if err != nil {
			logger.Fatalf("failed to initialize database: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(&repository.SecurityEventRow{}, &repository.BanRow{}); err != nil {
			logger.Fatalf("failed to migrate audit tables: %v", err)
		}
		audit = repository.NewAuditRepository(db.DB)
		banSink = audit
	}

	channels, closers := buildChannels(cfg, logger)
	var auditSink alert.AuditSink
	if audit != nil && cfg.Alerts.AuditDB {
		auditSink = audit
	}
	dispatcher := alert.NewDispatcher(logger, registry, channels, auditSink, cfg.Alerts.Dispatcher, nil)

	eng := engine.New(sc, box, analyzer, dispatcher, banSink, logger)
	guard := paymentguard.NewGuard(sharedStore, cfg.Payment, dispatcher, logger, nil)

	srv := server.NewServer(server.ServerDI{
		Config:           cfg,
		Logger:           logger,
		ShieldMiddleware: middleware.NewShieldMiddleware(eng, logger),
		AdminMiddleware:  middleware.NewAdminAuthMiddleware(logger, cfg.Server.AdminToken),
		HandlerTransport: handlers.HandlerTransport{
			ListBansHandler:         handlers.NewListBansHandler(logger, box),
			UnbanHandler:            handlers.NewUnbanHandler(logger, box),
			ListEventsHandler:       handlers.NewListEventsHandler(logger, audit),
			AuthorizePaymentHandler: handlers.NewAuthorizePaymentHandler(logger, guard),
		},
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, logger, registry, box)

	go func() {
		if err := srv.Run(); err != nil {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopSweep()
	if err := srv.Shutdown(); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
	dispatcher.Close()
	for _, c := range closers {
		c()
	}
}

func buildStore(cfg *config.Config, logger *logrus.Logger) store.Store {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory store")
		return store.NewMemoryStore(nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.WithField("addr", client.Options().Addr).Info("using redis store")
	return store.NewRedisStore(client, cfg.Redis.Prefix)
}

func buildReputation(cfg *config.Config, s store.Store, logger *logrus.Logger) *reputation.Cache {
	if cfg.Reputation.BaseURL == "" {
		return reputation.NewCache(nil, s, logger, nil)
	}
	client := reputation.NewHTTPClient(
		httpx.NewClient(httpx.DefaultTimeout),
		logger,
		httpx.NewCircuitBreaker(httpx.BreakerSettings{
			Name:    "reputation",
			CoolOff: 30 * time.Second,
		}),
		reputation.Credentials{
			BaseURL: cfg.Reputation.BaseURL,
			APIKey:  cfg.Reputation.APIKey,
		},
	)
	return reputation.NewCache(client, s, logger, nil)
}

func buildChannels(cfg *config.Config, logger *logrus.Logger) ([]alert.Channel, []func()) {
	var channels []alert.Channel
	var closers []func()

	if cfg.Alerts.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel(httpx.NewClient(httpx.DefaultTimeout), cfg.Alerts.WebhookURL))
	}
	if cfg.Alerts.Email.Host != "" {
		channels = append(channels, alert.NewEmailChannel(cfg.Alerts.Email))
	}
	if cfg.Alerts.Kafka.Host != "" {
		kafkaChannel, err := alert.NewKafkaChannel(cfg.Alerts.Kafka)
		if err != nil {
			logger.WithError(err).Error("failed to initialize kafka channel, continuing without it")
		} else {
			channels = append(channels, kafkaChannel)
			closers = append(closers, kafkaChannel.Close)
		}
	}
	return channels, closers
}

// runSweeper evicts expired cooldown entries and stale penalty records on
// a fixed cadence. Both structures evict lazily on access; the sweep keeps
// never-touched keys from accumulating.
func runSweeper(ctx context.Context, logger *logrus.Logger, registry *cooldown.Registry, box *penaltybox.Box) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := registry.Sweep(ctx, time.Hour)
			removed += box.Sweep(ctx)
			if removed > 0 {
				logger.WithField("removed", removed).Debug("sweep completed")
			}
		}
	}
}
