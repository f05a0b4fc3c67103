// internal/model/alert.go
package model

import "time"

// Alert categories raised by the reconciler for critical account-level
// failures. The dashboard UI consumes these; we only write them.
const (
	AlertCategoryPayment = "payment"
	AlertCategoryAuth    = "auth"
)

// Alert is an account-level notice, deduplicated by (category, code) while
// unresolved.
type Alert struct {
	ID        string     `db:"id" json:"id"`
	Category  string     `db:"category" json:"category"`
	Code      string     `db:"code" json:"code"`
	Message   string     `db:"message" json:"message"`
	Details   string     `db:"details" json:"details,omitempty"`
	Resolved  bool       `db:"resolved" json:"resolved"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
