// internal/model/delivery_record.go
package model

import "time"

// Delivery statuses for a single campaign recipient. pending/sent/delivered/read
// form a strictly increasing rank; failed sits outside the ordering and is
// applied as a side channel.
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusSent      = "sent"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusRead      = "read"
)

// DeliveryRank orders the success statuses. Unknown statuses (including
// "failed") rank at -1 so they never pass the monotonicity guard.
func DeliveryRank(status string) int {
	switch status {
	case DeliveryStatusPending:
		return 0
	case DeliveryStatusSent:
		return 1
	case DeliveryStatusDelivered:
		return 2
	case DeliveryStatusRead:
		return 3
	}
	return -1
}

// DeliveryRecord is one row of the delivery ledger: the source of truth for a
// campaign x recipient pair. Unique on (campaign_id, recipient_phone).
type DeliveryRecord struct {
	ID                int        `db:"id" json:"id"`
	CampaignID        int        `db:"campaign_id" json:"campaign_id"`
	RecipientPhone    string     `db:"recipient_phone" json:"recipient_phone"`
	RecipientName     string     `db:"recipient_name" json:"recipient_name"`
	ProviderMessageID *string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Status            string     `db:"status" json:"status"`
	FailureCode       string     `db:"failure_code" json:"failure_code,omitempty"`
	FailureReason     string     `db:"failure_reason" json:"failure_reason,omitempty"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Recipient is one entry of a dispatch trigger's recipient list.
type Recipient struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}
