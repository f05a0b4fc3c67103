// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/Marcelo-Rosas/smartzap-template/internal/errors"
	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
	"github.com/Marcelo-Rosas/smartzap-template/internal/service"
)

// CampaignHandler exposes the campaign surface: minimal create/read (the UI
// is an external collaborator) plus the dispatch trigger and pause/resume.
type CampaignHandler struct {
	Campaigns    repository.CampaignRepositoryInterface
	Records      repository.DeliveryRecordRepositoryInterface
	Orchestrator *service.Orchestrator
	Logger       zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// CreateCampaign handles POST /campaigns.
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name              string   `json:"name"`
		TemplateName      string   `json:"template_name"`
		TemplateLanguage  string   `json:"template_language"`
		TemplateVariables []string `json:"template_variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.TemplateName == "" {
		http.Error(w, "name and template_name are required", http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{
		Name:              body.Name,
		TemplateName:      body.TemplateName,
		TemplateLanguage:  body.TemplateLanguage,
		TemplateVariables: body.TemplateVariables,
		Status:            model.CampaignStatusDraft,
	}
	if err := h.Campaigns.Create(r.Context(), campaign); err != nil {
		http.Error(w, "failed to create campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// ListCampaigns handles GET /campaigns with page/page_size/status query params.
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	status := r.URL.Query().Get("status")

	campaigns, total, err := h.Campaigns.ListCampaigns(r.Context(), (page-1)*pageSize, pageSize, status)
	if err != nil {
		http.Error(w, "failed to fetch campaigns: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": campaigns,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": (total + pageSize - 1) / pageSize,
		},
	})
}

// GetCampaign handles GET /campaigns/{id}: the aggregate plus per-status
// ledger counts.
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	campaign, err := h.Campaigns.GetByID(r.Context(), id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	stats, err := h.Records.StatusCounts(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to fetch campaign stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campaign": campaign,
		"stats":    stats,
	})
}

// Dispatch handles POST /campaigns/{id}/dispatch: the dispatch trigger.
// Re-invocable: dispatching again resumes a paused or crashed run.
func (h *CampaignHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		Recipients []model.Recipient `json:"recipients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	for _, rcpt := range body.Recipients {
		if rcpt.Phone == "" {
			http.Error(w, "recipient without phone", http.StatusBadRequest)
			return
		}
	}

	if err := h.Orchestrator.Dispatch(r.Context(), id, body.Recipients); err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		var notStartable *appErrors.ErrCampaignNotStartable
		switch {
		case errors.As(err, &notFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &notStartable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.Logger.Error().Err(err).Int("campaign_id", id).Msg("dispatch failed")
			http.Error(w, "failed to dispatch campaign: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"campaign_id": id,
		"status":      model.CampaignStatusSending,
	})
}

// Pause handles POST /campaigns/{id}/pause. The in-flight batch completes;
// the next step observes the pause.
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	paused, err := h.Orchestrator.Pause(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to pause campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !paused {
		http.Error(w, "campaign is not sending", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"status":      model.CampaignStatusPaused,
	})
}

// Resume handles POST /campaigns/{id}/resume: a dispatch with no new
// recipients.
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	if err := h.Orchestrator.Dispatch(r.Context(), id, nil); err != nil {
		var notStartable *appErrors.ErrCampaignNotStartable
		if errors.As(err, &notStartable) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "failed to resume campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"campaign_id": id,
		"status":      model.CampaignStatusSending,
	})
}
