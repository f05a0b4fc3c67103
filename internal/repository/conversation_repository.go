// internal/repository/conversation_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
)

type ConversationRepositoryInterface interface {
	Get(ctx context.Context, id string) (*model.ConversationState, error)
	Upsert(ctx context.Context, state *model.ConversationState) error
	AdvanceStatus(ctx context.Context, id, expected, next string) (bool, error)
}

// ConversationRepository persists chatbot conversation positions. Status
// changes use the same compare-and-set discipline as delivery records so
// concurrent webhook handlers cannot revive an ended conversation.
type ConversationRepository struct {
	DB *sql.DB
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*model.ConversationState, error) {
	query := `
		SELECT id, current_node_id, status, variables, created_at, updated_at
		FROM conversation_states WHERE id=$1
	`
	var state model.ConversationState
	var rawVars []byte
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&state.ID, &state.CurrentNodeID, &state.Status, &rawVars, &state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(rawVars, &state.Variables); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *ConversationRepository) Upsert(ctx context.Context, state *model.ConversationState) error {
	vars, err := json.Marshal(state.Variables)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO conversation_states (id, current_node_id, status, variables)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET current_node_id=EXCLUDED.current_node_id, variables=EXCLUDED.variables, updated_at=NOW()
	`
	_, err = r.DB.ExecContext(ctx, query, state.ID, state.CurrentNodeID, state.Status, vars)
	return err
}

// AdvanceStatus applies a status transition only if the stored status still
// matches the expected one. "ended" is terminal: no transition moves out of it
// because the expected status would no longer match.
func (r *ConversationRepository) AdvanceStatus(ctx context.Context, id, expected, next string) (bool, error) {
	query := `
		UPDATE conversation_states
		SET status=$1, updated_at=NOW()
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
