package handlers

import (
	"net/http"

	"zpbitrix/internal/core/integration"
	"zpbitrix/internal/infra/http/shared"
	"zpbitrix/platform/logger"
)

// IntegrationHandler implementa handlers REST para vínculo e credenciais
type IntegrationHandler struct {
	*shared.BaseHandler
	integrationService *integration.Service
}

// NewIntegrationHandler cria nova instância do handler de integração
func NewIntegrationHandler(integrationService *integration.Service, logger *logger.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		BaseHandler:        shared.NewBaseHandler(logger),
		integrationService: integrationService,
	}
}

type issueLinkTokenRequest struct {
	WorkspaceID string `json:"workspaceId" validate:"required,min=1,max=255"`
}

// IssueLinkToken emite um token de vinculação para o workspace
func (h *IntegrationHandler) IssueLinkToken(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "issue link token")

	var req issueLinkTokenRequest
	if err := h.ParseAndValidateJSON(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	token, err := h.integrationService.IssueLinkToken(r.Context(), req.WorkspaceID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteCreated(w, token, "Link token issued")
}

type validateTokenRequest struct {
	Token string `json:"token" validate:"required,min=8,max=64"`
}

// ValidateToken resgata um token de vinculação e devolve a integração
func (h *IntegrationHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "validate link token")

	var req validateTokenRequest
	if err := h.ParseAndValidateJSON(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.integrationService.ResolveByToken(r.Context(), req.Token)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, result, "Workspace linked")
}

type oauthExchangeRequest struct {
	WorkspaceID string `json:"workspaceId" validate:"required,min=1,max=255"`
	Domain      string `json:"domain" validate:"required,portal_domain"`
	Code        string `json:"code" validate:"required"`
}

// ExchangeOAuth troca o authorization code por tokens e os persiste
func (h *IntegrationHandler) ExchangeOAuth(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "oauth exchange")

	var req oauthExchangeRequest
	if err := h.ParseAndValidateJSON(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	integ, err := h.integrationService.ResolveByDomain(r.Context(), req.Domain, req.WorkspaceID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	integ, err = h.integrationService.Exchange(r.Context(), integ.ID, req.Code)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "OAuth tokens stored")
}

// Install processa o callback de instalação disparado pelo portal.
// O portal envia form-encoded; member_id identifica a instalação.
func (h *IntegrationHandler) Install(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "portal install callback")

	if err := r.ParseForm(); err != nil {
		h.GetWriter().WriteBadRequest(w, "invalid form payload")
		return
	}

	params := integration.CallbackParams{
		MemberID: formValue(r, "member_id", "MEMBER_ID"),
		Domain:   formValue(r, "DOMAIN", "domain"),
	}

	integ, err := h.integrationService.ResolveByCallback(r.Context(), params)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	// Instalação via OAuth envia o code junto com o callback
	if code := formValue(r, "code", "CODE"); code != "" {
		integ, err = h.integrationService.Exchange(r.Context(), integ.ID, code)
		if err != nil {
			h.HandleError(w, err)
			return
		}
	}

	h.LogSuccess("portal install", map[string]interface{}{
		"integration_id": integ.ID.String(),
		"domain":         integ.Domain,
	})

	h.GetWriter().WriteSuccess(w, integ, "Installation processed")
}

type saveWebhookRequest struct {
	WorkspaceID string `json:"workspaceId" validate:"required,min=1,max=255"`
	Domain      string `json:"domain" validate:"omitempty,portal_domain"`
	WebhookURL  string `json:"webhookUrl" validate:"required,url"`
}

// SaveWebhook guarda uma credencial de webhook estático como alternativa ao OAuth
func (h *IntegrationHandler) SaveWebhook(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "save inbound webhook")

	var req saveWebhookRequest
	if err := h.ParseAndValidateJSON(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	integ, err := h.integrationService.SaveWebhook(r.Context(), req.WorkspaceID, req.Domain, req.WebhookURL)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "Webhook credential stored")
}

// Get devolve a integração pelo ID
func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	integ, err := h.integrationService.GetByID(r.Context(), integrationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ)
}

// RefreshToken força um refresh imediato do access token
func (h *IntegrationHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "force token refresh")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	integ, err := h.integrationService.GetByID(r.Context(), integrationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.integrationService.Refresh(r.Context(), integ); err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "Token refreshed")
}

func formValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Form.Get(name); v != "" {
			return v
		}
	}
	return ""
}
