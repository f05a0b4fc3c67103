// internal/service/orchestrator.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/Marcelo-Rosas/smartzap-template/internal/errors"
	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
	"github.com/Marcelo-Rosas/smartzap-template/internal/queue"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
)

// ErrBatchDeferred marks a step that made no forward progress because every
// recipient in the batch was deferred (cooldown or transient provider
// trouble). The step runner retries it with backoff.
var ErrBatchDeferred = errors.New("batch made no progress, all recipients deferred")

// BatchSenderInterface is what the orchestrator needs from the batch sender.
type BatchSenderInterface interface {
	SendBatch(ctx context.Context, campaign *model.Campaign, records []*model.DeliveryRecord) (BatchResult, error)
}

// Orchestrator drives a campaign through its batches. It holds no run state
// in memory: every step re-reads the campaign and the ledger, so any worker
// instance can execute any step and a crashed run resumes by re-dispatching.
type Orchestrator struct {
	Campaigns repository.CampaignRepositoryInterface
	Records   repository.DeliveryRecordRepositoryInterface
	Sender    BatchSenderInterface
	Queue     queue.Queue

	QueueName string
	BatchSize int
	Logger    zerolog.Logger
}

// Dispatch materializes the delivery ledger for the recipient list, moves the
// campaign to sending and enqueues the first step. Re-invoking it on a
// paused or crashed campaign resumes the run: existing records are kept and
// non-pending recipients are never sent again.
func (o *Orchestrator) Dispatch(ctx context.Context, campaignID int, recipients []model.Recipient) error {
	if err := o.Start(ctx, campaignID); err != nil {
		return err
	}

	if len(recipients) > 0 {
		if err := o.Records.Materialize(ctx, campaignID, recipients); err != nil {
			return fmt.Errorf("materialize recipients: %w", err)
		}
	}
	total, err := o.Records.CountByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if err := o.Campaigns.SetTotalRecipients(ctx, campaignID, total); err != nil {
		return err
	}

	return o.Queue.Publish(ctx, o.QueueName, queue.StepJob{CampaignID: campaignID})
}

// Start conditionally transitions the campaign to sending.
func (o *Orchestrator) Start(ctx context.Context, campaignID int) error {
	ok, err := o.Campaigns.MarkStarted(ctx, campaignID)
	if err != nil {
		return err
	}
	if !ok {
		campaign, err := o.Campaigns.GetByID(ctx, campaignID)
		if err != nil {
			return err
		}
		return appErrors.NewCampaignNotStartable(campaignID, campaign.Status)
	}
	return nil
}

// RunStep executes one durable step: send one batch and account for it.
// done=true means the chain stops here, either because the campaign reached a
// terminal state or because a pause was observed.
func (o *Orchestrator) RunStep(ctx context.Context, campaignID int) (done bool, err error) {
	campaign, err := o.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return false, err
	}

	switch campaign.Status {
	case model.CampaignStatusPaused:
		// Cooperative pause: observed between batches only. Resumed by a
		// fresh dispatch.
		o.Logger.Info().Int("campaign_id", campaignID).Msg("campaign paused, stopping step chain")
		return true, nil
	case model.CampaignStatusCompleted, model.CampaignStatusFailed:
		return true, nil
	case model.CampaignStatusSending:
	default:
		return false, fmt.Errorf("campaign %d in unexpected status %q for a step", campaignID, campaign.Status)
	}

	batch, err := o.Records.NextPendingBatch(ctx, campaignID, o.BatchSize)
	if err != nil {
		return false, err
	}
	if len(batch) == 0 {
		return true, o.finalize(ctx, campaign)
	}

	result, sendErr := o.Sender.SendBatch(ctx, campaign, batch)

	// Persist partial progress before surfacing any error: records already
	// marked sent/failed are no longer pending, so a step retry cannot
	// double-count them.
	if err := o.Campaigns.AddSendDeltas(ctx, campaignID, result.Sent, result.Failed); err != nil {
		return false, err
	}
	if sendErr != nil {
		return false, sendErr
	}
	if result.Sent == 0 && result.Failed == 0 && result.Skipped > 0 {
		return false, ErrBatchDeferred
	}

	o.Logger.Info().
		Int("campaign_id", campaignID).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("batch processed")
	return false, nil
}

// finalize decides the terminal status from the re-read counters.
func (o *Orchestrator) finalize(ctx context.Context, campaign *model.Campaign) error {
	status := model.CampaignStatusCompleted
	if campaign.TotalRecipients > 0 && campaign.Failed == campaign.TotalRecipients {
		status = model.CampaignStatusFailed
	}
	if err := o.Campaigns.Finalize(ctx, campaign.ID, status); err != nil {
		return err
	}
	o.Logger.Info().Int("campaign_id", campaign.ID).Str("status", status).Msg("campaign finalized")
	return nil
}

// FailCurrentBatch records the current pending batch as failed with a generic
// reason. The worker calls it when a step has exhausted its retry budget, so
// a persistently failing batch never aborts the whole campaign.
func (o *Orchestrator) FailCurrentBatch(ctx context.Context, campaignID int) error {
	batch, err := o.Records.NextPendingBatch(ctx, campaignID, o.BatchSize)
	if err != nil {
		return err
	}
	failed := 0
	for _, rec := range batch {
		if err := o.Records.MarkSendFailed(ctx, rec.ID, "", "send retries exhausted"); err != nil {
			return err
		}
		failed++
	}
	if err := o.Campaigns.AddSendDeltas(ctx, campaignID, 0, failed); err != nil {
		return err
	}
	o.Logger.Warn().Int("campaign_id", campaignID).Int("failed", failed).Msg("batch failed after exhausting retries")
	return nil
}

// Pause requests a cooperative pause. The in-flight batch still completes;
// the next step observes the status and stops.
func (o *Orchestrator) Pause(ctx context.Context, campaignID int) (bool, error) {
	return o.Campaigns.TransitionStatus(ctx, campaignID, model.CampaignStatusSending, model.CampaignStatusPaused)
}

// Run drives a campaign synchronously until done. The worker chains steps
// through the queue instead; this path serves tests and brokerless
// single-binary deployments.
func (o *Orchestrator) Run(ctx context.Context, campaignID int) error {
	if err := o.Start(ctx, campaignID); err != nil {
		return err
	}
	for {
		done, err := o.RunStep(ctx, campaignID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
