// internal/repository/alert_repository.go
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
)

type AlertRepositoryInterface interface {
	// Upsert raises an alert unless an unresolved one with the same
	// (category, code) already exists. Replay-safe.
	Upsert(ctx context.Context, category, code, message, details string) error

	// ResolveByCategory closes all open alerts in a category.
	ResolveByCategory(ctx context.Context, category string) error

	ListOpen(ctx context.Context) ([]*model.Alert, error)
}

type AlertRepository struct {
	DB *sql.DB
}

func (r *AlertRepository) Upsert(ctx context.Context, category, code, message, details string) error {
	// The partial unique index on (category, code) WHERE NOT resolved makes
	// this a no-op while the alert is still open.
	query := `
		INSERT INTO alerts (id, category, code, message, details)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category, code) WHERE NOT resolved DO NOTHING
	`
	_, err := r.DB.ExecContext(ctx, query, uuid.NewString(), category, code, message, details)
	return err
}

func (r *AlertRepository) ResolveByCategory(ctx context.Context, category string) error {
	query := `UPDATE alerts SET resolved=TRUE, updated_at=NOW() WHERE category=$1 AND NOT resolved`
	_, err := r.DB.ExecContext(ctx, query, category)
	return err
}

func (r *AlertRepository) ListOpen(ctx context.Context) ([]*model.Alert, error) {
	query := `
		SELECT id, category, code, message, details, resolved, created_at, updated_at
		FROM alerts
		WHERE NOT resolved
		ORDER BY created_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []*model.Alert{}
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.Category, &a.Code, &a.Message, &a.Details, &a.Resolved, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

var _ AlertRepositoryInterface = (*AlertRepository)(nil)
