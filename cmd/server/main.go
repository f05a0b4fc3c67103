// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Marcelo-Rosas/smartzap-template/internal/config"
	"github.com/Marcelo-Rosas/smartzap-template/internal/db"
	"github.com/Marcelo-Rosas/smartzap-template/internal/handler"
	"github.com/Marcelo-Rosas/smartzap-template/internal/provider"
	"github.com/Marcelo-Rosas/smartzap-template/internal/queue"
	"github.com/Marcelo-Rosas/smartzap-template/internal/ratelimit"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
	"github.com/Marcelo-Rosas/smartzap-template/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Fine in production: the environment is set by the platform.
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	logger := config.NewLogger(cfg.Log).With().Str("component", "server").Logger()

	if cfg.DB.RunMigrations {
		if err := db.Migrate(cfg.DB.URL); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		logger.Info().Msg("migrations applied")
	}

	conn, err := db.Open(cfg.DB.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recordRepo := &repository.DeliveryRecordRepository{DB: conn}
	alertRepo := &repository.AlertRepository{DB: conn}
	conversationRepo := &repository.ConversationRepository{DB: conn}

	slots := newStore(cfg, logger)
	whatsapp := provider.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.AccessToken, cfg.Sender.SendTimeout)

	sender := &service.BatchSender{
		Records:  recordRepo,
		Alerts:   alertRepo,
		Slots:    slots,
		Provider: whatsapp,
		SenderID: cfg.WhatsApp.PhoneNumberID,
		Delay:    cfg.Sender.InterSendDelay,
		Logger:   logger.With().Str("component", "batch_sender").Logger(),
	}

	orchestrator := &service.Orchestrator{
		Campaigns: campaignRepo,
		Records:   recordRepo,
		Sender:    sender,
		QueueName: cfg.AMQP.Queue,
		BatchSize: cfg.Sender.BatchSize,
		Logger:    logger.With().Str("component", "orchestrator").Logger(),
	}

	// Without a broker the server runs the steps itself through the
	// in-process queue; with one, cmd/worker owns them.
	if cfg.AMQP.URL == "" {
		logger.Warn().Msg("no AMQP URL configured, running campaign steps in-process")
		inproc := queue.NewInMemoryQueue()
		inproc.Subscribe(cfg.AMQP.Queue, func(payload []byte) error {
			var job queue.StepJob
			if err := json.Unmarshal(payload, &job); err != nil {
				return err
			}
			for {
				done, err := orchestrator.RunStep(context.Background(), job.CampaignID)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
			}
		})
		orchestrator.Queue = inproc
	} else {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("queue connection failed")
		}
		defer amqpQueue.Close()
		orchestrator.Queue = amqpQueue
	}

	reconciler := &service.Reconciler{
		Campaigns: campaignRepo,
		Records:   recordRepo,
		Alerts:    alertRepo,
		Logger:    logger.With().Str("component", "reconciler").Logger(),
	}

	campaignHandler := &handler.CampaignHandler{
		Campaigns:    campaignRepo,
		Records:      recordRepo,
		Orchestrator: orchestrator,
		Logger:       logger,
	}
	webhookHandler := &handler.WebhookHandler{
		Reconciler:    reconciler,
		Windows:       slots,
		Conversations: conversationRepo,
		SenderID:      cfg.WhatsApp.PhoneNumberID,
		VerifyToken:   cfg.WhatsApp.VerifyToken,
		Logger:        logger.With().Str("component", "webhook").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/campaigns", campaignHandler.CreateCampaign)
	r.Get("/campaigns", campaignHandler.ListCampaigns)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaign)
	r.Post("/campaigns/{id}/dispatch", campaignHandler.Dispatch)
	r.Post("/campaigns/{id}/pause", campaignHandler.Pause)
	r.Post("/campaigns/{id}/resume", campaignHandler.Resume)

	r.Get("/webhooks/whatsapp", webhookHandler.Verify)
	r.Post("/webhooks/whatsapp", webhookHandler.Receive)

	alertHandler := &handler.AlertHandler{Alerts: alertRepo, Logger: logger}
	r.Get("/alerts", alertHandler.ListOpen)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	logger.Info().Str("addr", addr).Msg("server listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// newStore picks Redis when configured, otherwise the in-memory fallback for
// constrained deployments.
func newStore(cfg config.Config, logger zerolog.Logger) ratelimit.Store {
	if cfg.Redis.URL == "" {
		logger.Warn().Msg("no Redis URL configured, using in-memory rate/window store")
		return ratelimit.NewMemoryStore(cfg.Sender.CooldownTTL, cfg.Sender.SessionWindow)
	}
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid redis url")
	}
	return ratelimit.NewRedisStore(redis.NewClient(opt), cfg.Sender.CooldownTTL, cfg.Sender.SessionWindow,
		logger.With().Str("component", "ratelimit").Logger())
}
