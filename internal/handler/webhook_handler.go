// internal/handler/webhook_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Marcelo-Rosas/smartzap-template/internal/model"
	"github.com/Marcelo-Rosas/smartzap-template/internal/ratelimit"
	"github.com/Marcelo-Rosas/smartzap-template/internal/repository"
	"github.com/Marcelo-Rosas/smartzap-template/internal/service"
)

// WebhookHandler receives WhatsApp Cloud API notifications: delivery receipts
// feed the reconciler, inbound user messages open the 24h session window.
//
// The POST handler always acknowledges with 200. Returning an error status
// would make the provider retry the whole envelope, and replays are already
// harmless because reconciliation is idempotent.
type WebhookHandler struct {
	Reconciler    *service.Reconciler
	Windows       ratelimit.Store
	Conversations repository.ConversationRepositoryInterface
	SenderID      string
	VerifyToken   string
	Logger        zerolog.Logger
}

// webhookEnvelope is the Cloud API notification shape: statuses and messages
// batched under entry/changes.
type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Errors []struct {
						Code    int    `json:"code"`
						Title   string `json:"title"`
						Message string `json:"message"`
					} `json:"errors"`
				} `json:"statuses"`
				Messages []struct {
					From string `json:"from"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Verify handles the GET verification handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.VerifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

// ensureConversation opens an active conversation for a recipient who wrote
// in, unless one already exists. Existing conversations keep their position;
// ended ones stay ended.
func (h *WebhookHandler) ensureConversation(ctx context.Context, phone string) error {
	if h.Conversations == nil {
		return nil
	}
	state, err := h.Conversations.Get(ctx, phone)
	if err != nil {
		return err
	}
	if state != nil {
		return nil
	}
	return h.Conversations.Upsert(ctx, &model.ConversationState{
		ID:            phone,
		CurrentNodeID: "start",
		Status:        model.ConversationStatusActive,
		Variables:     map[string]string{},
	})
}

// Receive handles POST notifications.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusOK)

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		// Malformed input must never block the receipt queue.
		h.Logger.Warn().Err(err).Msg("malformed webhook payload, acknowledging anyway")
		return
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			sender := value.Metadata.PhoneNumberID
			if sender == "" {
				sender = h.SenderID
			}

			for _, st := range value.Statuses {
				ev := service.ReceiptEvent{
					ProviderMessageID: st.ID,
					Status:            st.Status,
				}
				if len(st.Errors) > 0 {
					ev.ErrorCode = st.Errors[0].Code
					ev.ErrorMessage = st.Errors[0].Message
				}
				if err := h.Reconciler.Apply(r.Context(), ev); err != nil {
					h.Logger.Error().Err(err).Str("message_id", st.ID).Msg("receipt reconciliation failed")
				}
			}

			for _, msg := range value.Messages {
				if msg.From == "" {
					continue
				}
				if err := h.Windows.OpenSessionWindow(r.Context(), sender, msg.From); err != nil {
					h.Logger.Error().Err(err).Str("from", msg.From).Msg("failed to open session window")
				}
				if err := h.ensureConversation(r.Context(), msg.From); err != nil {
					h.Logger.Error().Err(err).Str("from", msg.From).Msg("failed to record conversation")
				}
			}
		}
	}
}
