package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Marcelo-Rosas/smartzap-template/internal/handler"
	"github.com/Marcelo-Rosas/smartzap-template/internal/service"
)

func newCampaignRouter() (*chi.Mux, *stubCampaignRepo) {
	campaigns := &stubCampaignRepo{}
	records := &stubRecordRepo{}
	h := &handler.CampaignHandler{
		Campaigns: campaigns,
		Records:   records,
		Orchestrator: &service.Orchestrator{
			Campaigns: campaigns,
			Records:   records,
			Logger:    zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}

	r := chi.NewRouter()
	r.Post("/campaigns", h.CreateCampaign)
	r.Post("/campaigns/{id}/dispatch", h.Dispatch)
	r.Post("/campaigns/{id}/pause", h.Pause)
	return r, campaigns
}

func TestCreateCampaignValidatesBody(t *testing.T) {
	r, _ := newCampaignRouter()

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`{"name": "promo"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "template_name is required")

	req = httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`not json`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchUnknownCampaignIsNotFound(t *testing.T) {
	r, _ := newCampaignRouter()

	req := httptest.NewRequest(http.MethodPost, "/campaigns/42/dispatch",
		strings.NewReader(`{"recipients": [{"phone": "254700000001", "name": "Alice"}]}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatchRejectsRecipientWithoutPhone(t *testing.T) {
	r, _ := newCampaignRouter()

	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/dispatch",
		strings.NewReader(`{"recipients": [{"name": "Alice"}]}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPauseNotSendingConflicts(t *testing.T) {
	r, _ := newCampaignRouter()

	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/pause", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
