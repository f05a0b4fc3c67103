// internal/handler/alert_handler.go
package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
)

// AlertHandler exposes the open operational alerts (payment, auth, template
// problems) raised during sending and reconciliation.
type AlertHandler struct {
	Alerts repository.AlertRepositoryInterface
	Logger zerolog.Logger
}

// ListOpen handles GET /alerts.
func (h *AlertHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Alerts.ListOpen(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to list alerts")
		http.Error(w, "failed to fetch alerts: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": alerts})
}
