// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrCampaignNotStartable is returned when a dispatch hits a campaign that is
// already in a terminal state (completed/failed). Paused and sending campaigns
// are startable: re-dispatching is how pause/resume and crash recovery work.
type ErrCampaignNotStartable struct {
	CampaignID int
	Status     string
}

func (e *ErrCampaignNotStartable) Error() string {
	return fmt.Sprintf("campaign %d cannot be started from status %q", e.CampaignID, e.Status)
}

func NewCampaignNotStartable(id int, status string) error {
	return &ErrCampaignNotStartable{CampaignID: id, Status: status}
}
