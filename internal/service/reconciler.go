// internal/service/reconciler.go
package service

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
	"github.com/Marcelo-Rosas/smartzap-template/internal/provider"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
)

// ReceiptEvent is one provider delivery receipt, delivered at-least-once and
// possibly out of order.
type ReceiptEvent struct {
	ProviderMessageID string
	Status            string
	ErrorCode         int
	ErrorMessage      string
}

// Reconciler folds delivery receipts into the ledger and the campaign
// counters. Safe to call concurrently for the same message: the row-level
// compare-and-set decides a single winner per transition, and only the winner
// touches the counters.
type Reconciler struct {
	Campaigns repository.CampaignRepositoryInterface
	Records   repository.DeliveryRecordRepositoryInterface
	Alerts    repository.AlertRepositoryInterface
	Logger    zerolog.Logger
}

// Apply processes one receipt. Unknown message ids, duplicates, stale
// out-of-order receipts and lost races are all silently dropped: none of them
// is an error under at-least-once delivery.
func (r *Reconciler) Apply(ctx context.Context, ev ReceiptEvent) error {
	rec, err := r.Records.GetByProviderMessageID(ctx, ev.ProviderMessageID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Not a message we sent.
		r.Logger.Debug().Str("message_id", ev.ProviderMessageID).Msg("receipt for unknown message, ignoring")
		return nil
	}

	if ev.Status == model.DeliveryStatusFailed {
		return r.applyFailure(ctx, rec, ev)
	}

	newRank := model.DeliveryRank(ev.Status)
	if newRank < 0 {
		r.Logger.Warn().Str("status", ev.Status).Str("message_id", ev.ProviderMessageID).Msg("unknown receipt status, ignoring")
		return nil
	}
	if newRank <= model.DeliveryRank(rec.Status) {
		// Duplicate or stale out-of-order receipt.
		return nil
	}

	applied, err := r.Records.AdvanceStatus(ctx, rec.ID, rec.Status, ev.Status)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent reconciliation advanced the record first; it owns the
		// counter increment.
		return nil
	}

	switch ev.Status {
	case model.DeliveryStatusDelivered:
		if err := r.Campaigns.IncrementCounter(ctx, rec.CampaignID, "delivered"); err != nil {
			return err
		}
		// A successful delivery is evidence any payment problem is resolved.
		if err := r.Alerts.ResolveByCategory(ctx, model.AlertCategoryPayment); err != nil {
			r.Logger.Error().Err(err).Msg("failed to auto-resolve payment alerts")
		}
	case model.DeliveryStatusRead:
		if err := r.Campaigns.IncrementCounter(ctx, rec.CampaignID, "read"); err != nil {
			return err
		}
	}
	return nil
}

// applyFailure handles the failed side channel. Failure applies only from
// pending or sent: a record that already reached delivered/read keeps its
// success, which also keeps delivered + failed <= sent.
func (r *Reconciler) applyFailure(ctx context.Context, rec *model.DeliveryRecord, ev ReceiptEvent) error {
	switch rec.Status {
	case model.DeliveryStatusPending, model.DeliveryStatusSent:
	default:
		return nil
	}

	failure := provider.ClassifyCode(ev.ErrorCode)
	code := strconv.Itoa(ev.ErrorCode)

	applied, err := r.Records.MarkDeliveryFailed(ctx, rec.ID, rec.Status, code, failure.UserMessage)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if err := r.Campaigns.IncrementCounter(ctx, rec.CampaignID, "failed"); err != nil {
		return err
	}

	if provider.Critical(failure.Category) {
		details := ev.ErrorMessage
		if details == "" {
			details = failure.UserMessage
		}
		if err := r.Alerts.Upsert(ctx, failure.Category, code, failure.UserMessage, details); err != nil {
			r.Logger.Error().Err(err).Msg("failed to raise account alert")
		}
	}
	return nil
}
