package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
	"github.com/Marcelo-Rosas/smartzap-template/internal/provider"
	"github.com/Marcelo-Rosas/smartzap-template/internal/ratelimit"
	"github.com/Marcelo-Rosas/smartzap-template/internal/service"
)

func newBatchSenderFixture(cooldown time.Duration) (*service.BatchSender, *fakeRecordRepo, *fakeAlertRepo, *fakeProvider) {
	records := newFakeRecordRepo()
	alerts := &fakeAlertRepo{}
	prov := newFakeProvider()
	sender := &service.BatchSender{
		Records:  records,
		Alerts:   alerts,
		Slots:    ratelimit.NewMemoryStore(cooldown, 24*time.Hour),
		Provider: prov,
		SenderID: "15550000000",
		Logger:   zerolog.Nop(),
	}
	return sender, records, alerts, prov
}

func pendingRecord(records *fakeRecordRepo, campaignID int, phone string) *model.DeliveryRecord {
	return records.add(&model.DeliveryRecord{
		CampaignID:     campaignID,
		RecipientPhone: phone,
		RecipientName:  "Test",
	})
}

func TestSendBatchMarksSentWithProviderID(t *testing.T) {
	sender, records, _, _ := newBatchSenderFixture(0)
	campaign := &model.Campaign{ID: 1, TemplateName: "promo", TemplateLanguage: "en"}
	rec := pendingRecord(records, 1, "254700000001")

	result, err := sender.SendBatch(context.Background(), campaign, []*model.DeliveryRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, service.BatchResult{Sent: 1}, result)

	got := records.get(rec.ID)
	assert.Equal(t, model.DeliveryStatusSent, got.Status)
	require.NotNil(t, got.ProviderMessageID)
	assert.Equal(t, "wamid.1", *got.ProviderMessageID)
}

func TestSendBatchCooldownAllowsExactlyOneSend(t *testing.T) {
	sender, records, _, prov := newBatchSenderFixture(time.Hour)
	campaign := &model.Campaign{ID: 1, TemplateName: "promo", TemplateLanguage: "en"}

	// Same recipient twice inside the cooldown window: second campaign's
	// record must be deferred, not sent.
	first := pendingRecord(records, 1, "254700000001")
	second := records.add(&model.DeliveryRecord{
		CampaignID:     2,
		RecipientPhone: "254700000001",
		RecipientName:  "Test",
	})

	result, err := sender.SendBatch(context.Background(), campaign, []*model.DeliveryRecord{first, second})
	require.NoError(t, err)
	assert.Equal(t, service.BatchResult{Sent: 1, Skipped: 1}, result)
	assert.Equal(t, 1, prov.callCount())
	assert.Equal(t, model.DeliveryStatusPending, records.get(second.ID).Status)
}

func TestSendBatchPermanentRejectionIsTerminal(t *testing.T) {
	sender, records, alerts, prov := newBatchSenderFixture(0)
	campaign := &model.Campaign{ID: 1, TemplateName: "promo", TemplateLanguage: "en"}
	rec := pendingRecord(records, 1, "254700000001")
	prov.failWith["254700000001"] = &provider.APIError{Code: 132000, Message: "param count mismatch"}

	result, err := sender.SendBatch(context.Background(), campaign, []*model.DeliveryRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, service.BatchResult{Failed: 1}, result)

	got := records.get(rec.ID)
	assert.Equal(t, model.DeliveryStatusFailed, got.Status)
	assert.Equal(t, "132000", got.FailureCode)
	assert.NotEmpty(t, got.FailureReason)

	open, err := alerts.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open, "template errors are not account-critical")
}

func TestSendBatchCriticalRejectionRaisesAlert(t *testing.T) {
	sender, records, alerts, prov := newBatchSenderFixture(0)
	campaign := &model.Campaign{ID: 1, TemplateName: "promo", TemplateLanguage: "en"}
	rec := pendingRecord(records, 1, "254700000001")
	prov.failWith["254700000001"] = &provider.APIError{Code: 131042, Message: "billing issue"}

	result, err := sender.SendBatch(context.Background(), campaign, []*model.DeliveryRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, service.BatchResult{Failed: 1}, result)

	open, err := alerts.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.AlertCategoryPayment, open[0].Category)
}

func TestSendBatchTransientErrorDefers(t *testing.T) {
	sender, records, _, prov := newBatchSenderFixture(0)
	campaign := &model.Campaign{ID: 1, TemplateName: "promo", TemplateLanguage: "en"}
	rec := pendingRecord(records, 1, "254700000001")
	prov.failWith["254700000001"] = errors.New("dial tcp: i/o timeout")

	result, err := sender.SendBatch(context.Background(), campaign, []*model.DeliveryRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, service.BatchResult{Skipped: 1}, result)
	assert.Equal(t, model.DeliveryStatusPending, records.get(rec.ID).Status, "transient failures leave the record for the step retry")
}
