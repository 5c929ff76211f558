package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicware/comms-hub-go/internal/debug"
)

// DebugHandler exposes the last raw webhook payload for troubleshooting
// integrations in the field. Admin-only.
type DebugHandler struct {
	capture *debug.Capture
}

func NewDebugHandler(capture *debug.Capture) *DebugHandler {
	return &DebugHandler{capture: capture}
}

func (h *DebugHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/last-webhook", h.LastWebhook)

	return r
}

// GET /debug/last-webhook
func (h *DebugHandler) LastWebhook(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.capture.Last()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"payload":    nil,
			"receivedAt": nil,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payload":    snap.Payload,
		"receivedAt": snap.ReceivedAt,
	})
}
