// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Marcelo-Rosas/smartzap-template/internal/config"
	"github.com/Marcelo-Rosas/smartzap-template/internal/db"
	"github.com/Marcelo-Rosas/smartzap-template/internal/provider"
	"github.com/Marcelo-Rosas/smartzap-template/internal/queue"
	"github.com/Marcelo-Rosas/smartzap-template/internal/ratelimit"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
	"github.com/Marcelo-Rosas/smartzap-template/internal/service"
)

// The worker is the durable step runner: each queue delivery is one
// orchestrator step (one batch). After a step that did not finish the
// campaign, the worker publishes a follow-up job, so a long campaign is a
// chain of small at-least-once steps with no in-process state between them.
func main() {
	if err := godotenv.Load(); err != nil {
		// Fine in production: the environment is set by the platform.
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	logger := config.NewLogger(cfg.Log).With().Str("component", "worker").Logger()

	conn, err := db.Open(cfg.DB.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recordRepo := &repository.DeliveryRecordRepository{DB: conn}
	alertRepo := &repository.AlertRepository{DB: conn}

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

	amqpQueue, err := queue.NewAMQPQueue(cfg.AMQP.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("queue connection failed")
	}
	defer amqpQueue.Close()

	orchestrator := &service.Orchestrator{
		Campaigns: campaignRepo,
		Records:   recordRepo,
		Sender:    sender,
		Queue:     amqpQueue,
		QueueName: cfg.AMQP.Queue,
		BatchSize: cfg.Sender.BatchSize,
		Logger:    logger.With().Str("component", "orchestrator").Logger(),
	}

	handleStep := func(payload []byte) error {
		var job queue.StepJob
		if err := json.Unmarshal(payload, &job); err != nil {
			logger.Warn().Err(err).Msg("invalid step job, dropping")
			return nil
		}

		ctx := context.Background()
		done, err := orchestrator.RunStep(ctx, job.CampaignID)
		if err != nil {
			return err
		}
		if !done {
			return amqpQueue.Publish(ctx, cfg.AMQP.Queue, queue.StepJob{CampaignID: job.CampaignID})
		}
		return nil
	}

	// Retry budget exhausted: record the batch as failed and keep the
	// campaign moving instead of aborting it.
	handleExhausted := func(payload []byte) {
		var job queue.StepJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return
		}
		ctx := context.Background()
		if err := orchestrator.FailCurrentBatch(ctx, job.CampaignID); err != nil {
			logger.Error().Err(err).Int("campaign_id", job.CampaignID).Msg("failed to record exhausted batch")
			return
		}
		if err := amqpQueue.Publish(ctx, cfg.AMQP.Queue, queue.StepJob{CampaignID: job.CampaignID}); err != nil {
			logger.Error().Err(err).Int("campaign_id", job.CampaignID).Msg("failed to chain next step")
		}
	}

	logger.Info().Str("queue", cfg.AMQP.Queue).Msg("worker running, waiting for steps")
	if err := amqpQueue.Consume(cfg.AMQP.Queue, cfg.Sender.StepRetries, handleStep, handleExhausted); err != nil {
		logger.Fatal().Err(err).Msg("consumer stopped")
	}
}

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
