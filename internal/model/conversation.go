// internal/model/conversation.go
package model

import "time"

// Conversation statuses for the chatbot flow engine. "ended" is terminal;
// status changes follow the same compare-and-set discipline as delivery
// records.
const (
	ConversationStatusActive = "active"
	ConversationStatusPaused = "paused"
	ConversationStatusEnded  = "ended"
)

// ConversationState tracks where a chatbot conversation currently is. The
// node-execution engine itself lives outside this service; we only persist
// its position and variables.
type ConversationState struct {
	ID            string            `db:"id" json:"id"`
	CurrentNodeID string            `db:"current_node_id" json:"current_node_id"`
	Status        string            `db:"status" json:"status"`
	Variables     map[string]string `db:"variables" json:"variables"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}
