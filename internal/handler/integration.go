package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/clinicware/comms-hub-go/internal/errors"
	"github.com/clinicware/comms-hub-go/internal/middleware"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/service"
)

type IntegrationHandler struct {
	integrationService *service.IntegrationService
}

func NewIntegrationHandler(integrationService *service.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{integrationService: integrationService}
}

// Routes mounts the integration endpoints. The OAuth callback stays outside
// the authenticated group because the provider redirect carries no bearer
// token; identity comes from the signed state parameter.
func (h *IntegrationHandler) Routes(authed ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/{provider}/callback", h.Callback)

	r.Group(func(r chi.Router) {
		for _, mw := range authed {
			r.Use(mw)
		}
		r.Get("/", h.List)
		r.With(middleware.RequireAdmin).Post("/{provider}/authorize", h.Authorize)
		r.With(middleware.RequireAdmin).Post("/{provider}/disconnect", h.Disconnect)
	})

	return r
}

// GET /v1/integrations
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	integrations, err := h.integrationService.List(r.Context(), scope)
	if err != nil {
		log.Error().Err(err).Msg("failed to list integrations")
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(integrations))
	for _, integ := range integrations {
		out = append(out, formatIntegration(&integ))
	}

	writeJSON(w, http.StatusOK, map[string]any{"integrations": out})
}

// POST /v1/integrations/{provider}/authorize
func (h *IntegrationHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	user := middleware.GetClinicUser(r.Context())
	prov := model.IntegrationProvider(chi.URLParam(r, "provider"))

	url, err := h.integrationService.AuthorizeURL(r.Context(), scope, user, prov)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"authorizationUrl": url})
}

// GET /v1/integrations/{provider}/callback
// Provider redirect target. Unauthenticated; trust comes from the state token.
func (h *IntegrationHandler) Callback(w http.ResponseWriter, r *http.Request) {
	prov := model.IntegrationProvider(chi.URLParam(r, "provider"))
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		log.Warn().
			Str("provider", string(prov)).
			Str("error", errCode).
			Msg("oauth callback returned an error")
		writeError(w, apperrors.InvalidInput("callback", "authorization was denied"))
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		writeError(w, apperrors.MissingRequired("code and state"))
		return
	}

	integ, err := h.integrationService.CompleteCallback(r.Context(), prov, code, state)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"integration": formatIntegration(integ),
	})
}

// POST /v1/integrations/{provider}/disconnect
func (h *IntegrationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	prov := model.IntegrationProvider(chi.URLParam(r, "provider"))
	if !prov.Valid() {
		writeError(w, apperrors.InvalidInput("provider", "unknown provider"))
		return
	}

	if err := h.integrationService.Disconnect(r.Context(), scope, prov); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func formatIntegration(integ *model.Integration) map[string]any {
	return map[string]any{
		"id":           integ.ID,
		"provider":     integ.Provider,
		"status":       integ.Status,
		"metadata":     integ.Metadata,
		"connectedAt":  formatTime(integ.ConnectedAt),
		"lastSyncAt":   formatTime(integ.LastSyncAt),
		"errorMessage": integ.ErrorMessage,
	}
}
