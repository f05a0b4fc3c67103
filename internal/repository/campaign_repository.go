// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/Marcelo-Rosas/smartzap-template/internal/errors"
	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)

	// MarkStarted conditionally transitions a startable campaign to sending
	// and stamps started_at on the first start. False means the campaign was
	// not in a startable state.
	MarkStarted(ctx context.Context, campaignID int) (bool, error)

	// TransitionStatus moves the campaign from one status to another only if
	// it still holds the expected status. Used for pause so a finished
	// campaign cannot be flipped back.
	TransitionStatus(ctx context.Context, campaignID int, expected, next string) (bool, error)
	SetTotalRecipients(ctx context.Context, campaignID, total int) error

	// AddSendDeltas adds a batch's sent/failed deltas to the campaign
	// counters. Increment-only: the reconciler writes other columns of the
	// same row concurrently.
	AddSendDeltas(ctx context.Context, campaignID, sent, failed int) error

	// IncrementCounter adds 1 to one of delivered/read/failed.
	IncrementCounter(ctx context.Context, campaignID int, counter string) error

	// Finalize sets the terminal status and stamps completed_at, but only
	// while the campaign is still sending (a pause that won a race is kept).
	Finalize(ctx context.Context, campaignID int, status string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, template_name, template_language, template_variables, status,
	total_recipients, sent, delivered, read, failed,
	scheduled_at, started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	var rawVars []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.TemplateName, &c.TemplateLanguage, &rawVars, &c.Status,
		&c.TotalRecipients, &c.Sent, &c.Delivered, &c.Read, &c.Failed,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawVars) > 0 {
		if err := json.Unmarshal(rawVars, &c.TemplateVariables); err != nil {
			return nil, fmt.Errorf("decode template variables: %w", err)
		}
	}
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	if c.TemplateLanguage == "" {
		c.TemplateLanguage = "en"
	}
	vars, err := json.Marshal(c.TemplateVariables)
	if err != nil {
		return err
	}
	c.CreatedAt = time.Now()

	query := `
		INSERT INTO campaigns (name, template_name, template_language, template_variables, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		c.Name, c.TemplateName, c.TemplateLanguage, vars, c.Status, c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []any{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	countArgs := []any{}
	if status != "" {
		countQuery += " AND status=$1"
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) MarkStarted(ctx context.Context, campaignID int) (bool, error) {
	query := `
		UPDATE campaigns
		SET status=$1, started_at=COALESCE(started_at, NOW()), updated_at=NOW()
		WHERE id=$2 AND status = ANY($3)
	`
	res, err := r.DB.ExecContext(ctx, query,
		model.CampaignStatusSending, campaignID, pq.Array(model.StartableStatuses))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) TransitionStatus(ctx context.Context, campaignID int, expected, next string) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.ExecContext(ctx, query, next, campaignID, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) SetTotalRecipients(ctx context.Context, campaignID, total int) error {
	query := `UPDATE campaigns SET total_recipients=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, total, campaignID)
	return err
}

func (r *CampaignRepository) AddSendDeltas(ctx context.Context, campaignID, sent, failed int) error {
	if sent == 0 && failed == 0 {
		return nil
	}
	query := `UPDATE campaigns SET sent = sent + $1, failed = failed + $2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, sent, failed, campaignID)
	return err
}

func (r *CampaignRepository) IncrementCounter(ctx context.Context, campaignID int, counter string) error {
	// Column name cannot be a bind parameter; accept only the known counters.
	switch counter {
	case "delivered", "read", "failed":
	default:
		return fmt.Errorf("unknown campaign counter %q", counter)
	}
	query := fmt.Sprintf(`UPDATE campaigns SET %s = %s + 1, updated_at=NOW() WHERE id=$1`, counter, counter)
	_, err := r.DB.ExecContext(ctx, query, campaignID)
	return err
}

func (r *CampaignRepository) Finalize(ctx context.Context, campaignID int, status string) error {
	query := `
		UPDATE campaigns
		SET status=$1, completed_at=NOW(), updated_at=NOW()
		WHERE id=$2 AND status=$3
	`
	_, err := r.DB.ExecContext(ctx, query, status, campaignID, model.CampaignStatusSending)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
