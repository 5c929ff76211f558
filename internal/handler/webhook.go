package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/clinicware/comms-hub-go/internal/service"
	"github.com/clinicware/comms-hub-go/internal/util"
)

// WebhookHandler receives provider webhook traffic. The POST endpoint always
// acknowledges with 200 once the signature has been verified upstream; the
// provider retries on anything else and processing problems are handled by
// redelivery plus dedupe, not by error statuses.
type WebhookHandler struct {
	ingestService *service.IngestService
	verifyToken   string
}

func NewWebhookHandler(ingestService *service.IngestService, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		ingestService: ingestService,
		verifyToken:   verifyToken,
	}
}

func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/whatsapp", h.Verify)
	r.Post("/whatsapp", h.Receive)

	return r
}

// GET /webhooks/whatsapp
// Subscription handshake: echo hub.challenge when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || !util.ConstantTimeEqual(token, h.verifyToken) {
		log.Warn().Str("mode", mode).Msg("webhook verification rejected")
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Verification failed"})
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// POST /webhooks/whatsapp
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("webhook: failed to read body")
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	h.ingestService.Ingest(r.Context(), body)

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
