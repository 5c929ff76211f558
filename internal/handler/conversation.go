package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicware/comms-hub-go/internal/middleware"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/service"
)

type ConversationHandler struct {
	convService *service.ConversationService
}

func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

func (h *ConversationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}/messages", h.Messages)
	r.Post("/{id}/view", h.MarkViewed)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/reopen", h.Reopen)

	return r
}

// GET /v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	pagination := ParsePagination(r)

	conversations, err := h.convService.List(r.Context(), scope, pagination.Limit, pagination.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, formatConversation(conv))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": out,
		"limit":         pagination.Limit,
		"offset":        pagination.Offset,
	})
}

// GET /v1/conversations/{id}/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	pagination := ParsePagination(r)

	messages, total, err := h.convService.Messages(r.Context(), scope, chi.URLParam(r, "id"), pagination.Limit, pagination.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"total":    total,
		"limit":    pagination.Limit,
		"offset":   pagination.Offset,
	})
}

// POST /v1/conversations/{id}/view
func (h *ConversationHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	user := middleware.GetClinicUser(r.Context())

	if err := h.convService.MarkViewed(r.Context(), scope, chi.URLParam(r, "id"), user.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /v1/conversations/{id}/complete
func (h *ConversationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if err := h.convService.Complete(r.Context(), scope, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /v1/conversations/{id}/reopen
func (h *ConversationHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if err := h.convService.Reopen(r.Context(), scope, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func formatConversation(conv model.Conversation) map[string]any {
	return map[string]any{
		"id":             conv.ID,
		"canonicalPhone": conv.CanonicalPhone,
		"status":         conv.Status,
		"lastInboundAt":  formatTime(conv.LastInboundAt),
		"lastOutboundAt": formatTime(conv.LastOutboundAt),
		"createdAt":      conv.CreatedAt.Format(time.RFC3339),
	}
}
