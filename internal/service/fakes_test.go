package service_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	appErrors "github.com/Marcelo-Rosas/smartzap-template/internal/errors"
	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
	"github.com/Marcelo-Rosas/smartzap-template/internal/provider"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
)

// In-memory repositories that mirror the SQL semantics the services rely on:
// conditional updates report whether they applied, counter updates are
// increments, and everything is safe for concurrent use.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	nextID    int
	campaigns map[int]*model.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: map[int]*model.Campaign{}}
}

func (f *fakeCampaignRepo) add(c *model.Campaign) *model.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	f.campaigns[c.ID] = c
	return c
}

func (f *fakeCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	f.add(c)
	return nil
}

func (f *fakeCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	snapshot := *c
	return &snapshot, nil
}

func (f *fakeCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range f.campaigns {
		if status == "" || c.Status == status {
			snapshot := *c
			out = append(out, &snapshot)
		}
	}
	return out, len(out), nil
}

func (f *fakeCampaignRepo) MarkStarted(ctx context.Context, campaignID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	if !c.Startable() {
		return false, nil
	}
	c.Status = model.CampaignStatusSending
	if c.StartedAt == nil {
		now := time.Now()
		c.StartedAt = &now
	}
	return true, nil
}

func (f *fakeCampaignRepo) TransitionStatus(ctx context.Context, campaignID int, expected, next string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok || c.Status != expected {
		return false, nil
	}
	c.Status = next
	return true, nil
}

func (f *fakeCampaignRepo) SetTotalRecipients(ctx context.Context, campaignID, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[campaignID]; ok {
		c.TotalRecipients = total
	}
	return nil
}

func (f *fakeCampaignRepo) AddSendDeltas(ctx context.Context, campaignID, sent, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[campaignID]; ok {
		c.Sent += sent
		c.Failed += failed
	}
	return nil
}

func (f *fakeCampaignRepo) IncrementCounter(ctx context.Context, campaignID int, counter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	switch counter {
	case "delivered":
		c.Delivered++
	case "read":
		c.Read++
	case "failed":
		c.Failed++
	default:
		return fmt.Errorf("unknown campaign counter %q", counter)
	}
	return nil
}

func (f *fakeCampaignRepo) Finalize(ctx context.Context, campaignID int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok || c.Status != model.CampaignStatusSending {
		return nil
	}
	c.Status = status
	now := time.Now()
	c.CompletedAt = &now
	return nil
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

type fakeRecordRepo struct {
	mu      sync.Mutex
	nextID  int
	records map[int]*model.DeliveryRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: map[int]*model.DeliveryRecord{}}
}

func (f *fakeRecordRepo) add(rec *model.DeliveryRecord) *model.DeliveryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	if rec.Status == "" {
		rec.Status = model.DeliveryStatusPending
	}
	f.records[rec.ID] = rec
	return rec
}

func (f *fakeRecordRepo) Materialize(ctx context.Context, campaignID int, recipients []model.Recipient) error {
	for _, rcpt := range recipients {
		exists := false
		f.mu.Lock()
		for _, rec := range f.records {
			if rec.CampaignID == campaignID && rec.RecipientPhone == rcpt.Phone {
				exists = true
				break
			}
		}
		f.mu.Unlock()
		if !exists {
			f.add(&model.DeliveryRecord{
				CampaignID:     campaignID,
				RecipientPhone: rcpt.Phone,
				RecipientName:  rcpt.Name,
			})
		}
	}
	return nil
}

func (f *fakeRecordRepo) CountByCampaign(ctx context.Context, campaignID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.records {
		if rec.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRecordRepo) NextPendingBatch(ctx context.Context, campaignID, limit int) ([]*model.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.DeliveryRecord{}
	for id := 1; id <= f.nextID && len(out) < limit; id++ {
		rec, ok := f.records[id]
		if ok && rec.CampaignID == campaignID && rec.Status == model.DeliveryStatusPending {
			snapshot := *rec
			out = append(out, &snapshot)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) MarkSent(ctx context.Context, id int, providerMessageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return fmt.Errorf("record %d not found", id)
	}
	rec.Status = model.DeliveryStatusSent
	rec.ProviderMessageID = &providerMessageID
	now := time.Now()
	rec.SentAt = &now
	return nil
}

func (f *fakeRecordRepo) MarkSendFailed(ctx context.Context, id int, code, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return fmt.Errorf("record %d not found", id)
	}
	rec.Status = model.DeliveryStatusFailed
	rec.FailureCode = code
	rec.FailureReason = reason
	now := time.Now()
	rec.FailedAt = &now
	return nil
}

func (f *fakeRecordRepo) GetByProviderMessageID(ctx context.Context, messageID string) (*model.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ProviderMessageID != nil && *rec.ProviderMessageID == messageID {
			snapshot := *rec
			return &snapshot, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordRepo) AdvanceStatus(ctx context.Context, id int, expected, next string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != expected {
		return false, nil
	}
	rec.Status = next
	now := time.Now()
	switch next {
	case model.DeliveryStatusDelivered:
		rec.DeliveredAt = &now
	case model.DeliveryStatusRead:
		rec.ReadAt = &now
	case model.DeliveryStatusSent:
		rec.SentAt = &now
	}
	return true, nil
}

func (f *fakeRecordRepo) MarkDeliveryFailed(ctx context.Context, id int, expected, code, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != expected {
		return false, nil
	}
	rec.Status = model.DeliveryStatusFailed
	rec.FailureCode = code
	rec.FailureReason = reason
	now := time.Now()
	rec.FailedAt = &now
	return true, nil
}

func (f *fakeRecordRepo) StatusCounts(ctx context.Context, campaignID int) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{}
	for _, rec := range f.records {
		if rec.CampaignID == campaignID {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

func (f *fakeRecordRepo) get(id int) model.DeliveryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

var _ repository.DeliveryRecordRepositoryInterface = (*fakeRecordRepo)(nil)

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

func (f *fakeAlertRepo) Upsert(ctx context.Context, category, code, message, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if !a.Resolved && a.Category == category && a.Code == code {
			return nil
		}
	}
	f.alerts = append(f.alerts, &model.Alert{
		ID:        strconv.Itoa(len(f.alerts) + 1),
		Category:  category,
		Code:      code,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakeAlertRepo) ResolveByCategory(ctx context.Context, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.Category == category {
			a.Resolved = true
		}
	}
	return nil
}

func (f *fakeAlertRepo) ListOpen(ctx context.Context) ([]*model.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Alert{}
	for _, a := range f.alerts {
		if !a.Resolved {
			snapshot := *a
			out = append(out, &snapshot)
		}
	}
	return out, nil
}

var _ repository.AlertRepositoryInterface = (*fakeAlertRepo)(nil)

// fakeProvider scripts per-recipient outcomes and records every call.
type fakeProvider struct {
	mu       sync.Mutex
	nextID   int
	failWith map[string]error // recipient phone -> error
	calls    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{failWith: map[string]error{}}
}

func (f *fakeProvider) SendTemplate(ctx context.Context, to string, msg provider.TemplateMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, to)
	if err, ok := f.failWith[to]; ok {
		return "", err
	}
	f.nextID++
	return fmt.Sprintf("wamid.%d", f.nextID), nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var _ provider.Sender = (*fakeProvider)(nil)
