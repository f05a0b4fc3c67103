// internal/model/campaign.go
package model

import "time"

// Campaign lifecycle statuses. Counters only ever increase; the orchestrator
// and the reconciler are the only writers.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

type Campaign struct {
	ID                int        `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	TemplateName      string     `db:"template_name" json:"template_name"`
	TemplateLanguage  string     `db:"template_language" json:"template_language"`
	TemplateVariables []string   `db:"template_variables" json:"template_variables"`
	Status            string     `db:"status" json:"status"`
	TotalRecipients   int        `db:"total_recipients" json:"total_recipients"`
	Sent              int        `db:"sent" json:"sent"`
	Delivered         int        `db:"delivered" json:"delivered"`
	Read              int        `db:"read" json:"read"`
	Failed            int        `db:"failed" json:"failed"`
	ScheduledAt       *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// StartableStatuses are the campaign states a dispatch may (re)start from.
// "sending" is startable on purpose: a crashed run is resumed by re-dispatching,
// and already-processed recipients are skipped through their delivery records.
var StartableStatuses = []string{
	CampaignStatusDraft,
	CampaignStatusScheduled,
	CampaignStatusPaused,
	CampaignStatusSending,
}

func (c *Campaign) Startable() bool {
	for _, s := range StartableStatuses {
		if c.Status == s {
			return true
		}
	}
	return false
}
