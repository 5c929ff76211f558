package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/clinicware/comms-hub-go/internal/errors"
	"github.com/clinicware/comms-hub-go/internal/middleware"
	"github.com/clinicware/comms-hub-go/internal/service"
)

type MessageHandler struct {
	dispatchService *service.DispatchService
}

func NewMessageHandler(dispatchService *service.DispatchService) *MessageHandler {
	return &MessageHandler{dispatchService: dispatchService}
}

func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/send", h.Send)

	return r
}

// POST /v1/messages/send
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	result, err := h.dispatchService.Send(r.Context(), scope, req.To, req.Text)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeDatabase || apperrors.GetCode(err) == apperrors.ErrCodeInternal {
			log.Error().Err(err).Str("clinicId", scope.ClinicID()).Msg("message send failed")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"conversationId": result.ConversationID,
		"messageId":      result.ProviderMessageID,
	})
}
