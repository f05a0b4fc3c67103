// internal/repository/delivery_record_repository.go
package repository

import (
	"context"
	"database/sql"

	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
)

type DeliveryRecordRepositoryInterface interface {
	// Materialize creates one pending record per recipient, skipping pairs
	// that already exist. Safe to replay on a re-dispatch.
	Materialize(ctx context.Context, campaignID int, recipients []model.Recipient) error
	CountByCampaign(ctx context.Context, campaignID int) (int, error)

	// NextPendingBatch returns up to limit pending records, oldest first.
	NextPendingBatch(ctx context.Context, campaignID, limit int) ([]*model.DeliveryRecord, error)

	MarkSent(ctx context.Context, id int, providerMessageID string) error
	MarkSendFailed(ctx context.Context, id int, code, reason string) error

	// GetByProviderMessageID returns nil, nil when no record matches: the
	// receipt belongs to a message we did not send.
	GetByProviderMessageID(ctx context.Context, messageID string) (*model.DeliveryRecord, error)

	// AdvanceStatus is the reconciler's compare-and-set: the update applies
	// only if the row still holds the expected prior status. False means a
	// concurrent reconciliation won the race and the caller must not touch
	// the campaign counters.
	AdvanceStatus(ctx context.Context, id int, expected, next string) (bool, error)

	// MarkDeliveryFailed is the failed side channel with the same
	// compare-and-set contract, recording the normalized failure.
	MarkDeliveryFailed(ctx context.Context, id int, expected, code, reason string) (bool, error)

	StatusCounts(ctx context.Context, campaignID int) (map[string]int, error)
}

type DeliveryRecordRepository struct {
	DB *sql.DB
}

const deliveryColumns = `id, campaign_id, recipient_phone, recipient_name, provider_message_id,
	status, failure_code, failure_reason,
	sent_at, delivered_at, read_at, failed_at, created_at, updated_at`

func scanDeliveryRecord(row interface{ Scan(...any) error }) (*model.DeliveryRecord, error) {
	var rec model.DeliveryRecord
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.RecipientPhone, &rec.RecipientName, &rec.ProviderMessageID,
		&rec.Status, &rec.FailureCode, &rec.FailureReason,
		&rec.SentAt, &rec.DeliveredAt, &rec.ReadAt, &rec.FailedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *DeliveryRecordRepository) Materialize(ctx context.Context, campaignID int, recipients []model.Recipient) error {
	query := `
		INSERT INTO delivery_records (campaign_id, recipient_phone, recipient_name, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (campaign_id, recipient_phone) DO NOTHING
	`
	for _, rcpt := range recipients {
		if _, err := r.DB.ExecContext(ctx, query, campaignID, rcpt.Phone, rcpt.Name); err != nil {
			return err
		}
	}
	return nil
}

func (r *DeliveryRecordRepository) CountByCampaign(ctx context.Context, campaignID int) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_records WHERE campaign_id=$1`, campaignID).Scan(&n)
	return n, err
}

func (r *DeliveryRecordRepository) NextPendingBatch(ctx context.Context, campaignID, limit int) ([]*model.DeliveryRecord, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM delivery_records
		WHERE campaign_id=$1 AND status='pending'
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.DeliveryRecord{}
	for rows.Next() {
		rec, err := scanDeliveryRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *DeliveryRecordRepository) MarkSent(ctx context.Context, id int, providerMessageID string) error {
	query := `
		UPDATE delivery_records
		SET status='sent', provider_message_id=$1, sent_at=NOW(), updated_at=NOW()
		WHERE id=$2
	`
	_, err := r.DB.ExecContext(ctx, query, providerMessageID, id)
	return err
}

func (r *DeliveryRecordRepository) MarkSendFailed(ctx context.Context, id int, code, reason string) error {
	query := `
		UPDATE delivery_records
		SET status='failed', failure_code=$1, failure_reason=$2, failed_at=NOW(), updated_at=NOW()
		WHERE id=$3
	`
	_, err := r.DB.ExecContext(ctx, query, code, reason, id)
	return err
}

func (r *DeliveryRecordRepository) GetByProviderMessageID(ctx context.Context, messageID string) (*model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_records WHERE provider_message_id=$1`
	rec, err := scanDeliveryRecord(r.DB.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *DeliveryRecordRepository) AdvanceStatus(ctx context.Context, id int, expected, next string) (bool, error) {
	var tsColumn string
	switch next {
	case model.DeliveryStatusDelivered:
		tsColumn = "delivered_at"
	case model.DeliveryStatusRead:
		tsColumn = "read_at"
	case model.DeliveryStatusSent:
		tsColumn = "sent_at"
	default:
		tsColumn = "updated_at"
	}
	query := `
		UPDATE delivery_records
		SET status=$1, ` + tsColumn + `=NOW(), updated_at=NOW()
		WHERE id=$2 AND status=$3
	`
	res, err := r.DB.ExecContext(ctx, query, next, id, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *DeliveryRecordRepository) MarkDeliveryFailed(ctx context.Context, id int, expected, code, reason string) (bool, error) {
	query := `
		UPDATE delivery_records
		SET status='failed', failure_code=$1, failure_reason=$2, failed_at=NOW(), updated_at=NOW()
		WHERE id=$3 AND status=$4
	`
	res, err := r.DB.ExecContext(ctx, query, code, reason, id, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *DeliveryRecordRepository) StatusCounts(ctx context.Context, campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM delivery_records WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		model.DeliveryStatusPending:   0,
		model.DeliveryStatusSent:      0,
		model.DeliveryStatusDelivered: 0,
		model.DeliveryStatusRead:      0,
		model.DeliveryStatusFailed:    0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

var _ DeliveryRecordRepositoryInterface = (*DeliveryRecordRepository)(nil)
