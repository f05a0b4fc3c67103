// internal/service/batch_sender.go
package service

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
	"github.com/Marcelo-Rosas/smartzap-template/internal/provider"
	"github.com/Marcelo-Rosas/smartzap-template/internal/ratelimit"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
)

// BatchResult is what one batch attempt produced. Skipped recipients stay
// pending (cooldown hit or transient provider error) and are picked up by a
// later step.
type BatchResult struct {
	Sent    int
	Failed  int
	Skipped int
}

// BatchSender sends one batch of pending delivery records sequentially,
// spacing calls with a fixed delay to stay under the provider's rate ceiling.
type BatchSender struct {
	Records  repository.DeliveryRecordRepositoryInterface
	Alerts   repository.AlertRepositoryInterface
	Slots    ratelimit.Store
	Provider provider.Sender

	// SenderID identifies the sending phone number in rate-limit keys.
	SenderID string
	Delay    time.Duration
	Logger   zerolog.Logger
}

// SendBatch processes each record exactly once for this attempt. Permanent
// provider rejections are terminal for the recipient; transient errors leave
// the record pending and surface through BatchResult.Skipped so the durable
// step runner retries the batch.
func (s *BatchSender) SendBatch(ctx context.Context, campaign *model.Campaign, records []*model.DeliveryRecord) (BatchResult, error) {
	var result BatchResult

	for i, rec := range records {
		if i > 0 && s.Delay > 0 {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}

		ok, err := s.Slots.CheckAndReserveSendSlot(ctx, s.SenderID, rec.RecipientPhone)
		if err != nil {
			return result, err
		}
		if !ok {
			// Recently sent to this recipient; leave pending for a later step.
			s.Logger.Debug().Str("recipient", rec.RecipientPhone).Msg("send slot taken, deferring")
			result.Skipped++
			continue
		}

		msg := provider.TemplateMessage{
			Name:       campaign.TemplateName,
			Language:   campaign.TemplateLanguage,
			Parameters: templateParameters(rec, campaign),
		}
		messageID, sendErr := s.Provider.SendTemplate(ctx, rec.RecipientPhone, msg)
		if sendErr != nil {
			code, failure := provider.Classify(sendErr)
			if failure.Retryable {
				// Transient: keep the record pending so the step retry
				// takes another shot at it.
				s.Logger.Warn().Err(sendErr).Str("recipient", rec.RecipientPhone).Msg("transient send failure, deferring")
				result.Skipped++
				continue
			}

			s.Logger.Warn().Err(sendErr).
				Int("code", code).
				Str("category", failure.Category).
				Str("recipient", rec.RecipientPhone).
				Msg("send rejected")
			if err := s.Records.MarkSendFailed(ctx, rec.ID, strconv.Itoa(code), failure.UserMessage); err != nil {
				return result, err
			}
			result.Failed++

			if provider.Critical(failure.Category) {
				if err := s.Alerts.Upsert(ctx, failure.Category, strconv.Itoa(code), failure.UserMessage, sendErr.Error()); err != nil {
					s.Logger.Error().Err(err).Msg("failed to raise account alert")
				}
			}
			continue
		}

		if err := s.Records.MarkSent(ctx, rec.ID, messageID); err != nil {
			return result, err
		}
		result.Sent++
	}

	return result, nil
}

// templateParameters builds the ordered body parameters: recipient name
// first, then the campaign's static variables.
func templateParameters(rec *model.DeliveryRecord, campaign *model.Campaign) []string {
	name := rec.RecipientName
	if name == "" {
		name = rec.RecipientPhone
	}
	params := make([]string, 0, 1+len(campaign.TemplateVariables))
	params = append(params, name)
	params = append(params, campaign.TemplateVariables...)
	return params
}
