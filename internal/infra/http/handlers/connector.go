package handlers

import (
	"net/http"
	"strconv"

	"zpbitrix/internal/core/connector"
	"zpbitrix/internal/infra/http/shared"
	"zpbitrix/platform/logger"
)

// ConnectorHandler implementa handlers REST para o ciclo de vida do conector
type ConnectorHandler struct {
	*shared.BaseHandler
	connectorService *connector.Service
}

// NewConnectorHandler cria nova instância do handler de conector
func NewConnectorHandler(connectorService *connector.Service, logger *logger.Logger) *ConnectorHandler {
	return &ConnectorHandler{
		BaseHandler:      shared.NewBaseHandler(logger),
		connectorService: connectorService,
	}
}

type connectorSetupRequest struct {
	WorkspaceName string `json:"workspaceName" validate:"omitempty,max=255"`
}

// Clean remove conectores duplicados e garante o conector canônico
func (h *ConnectorHandler) Clean(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "clean duplicate connectors")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req connectorSetupRequest
	if r.ContentLength > 0 {
		if err := h.ParseAndValidateJSON(r, &req); err != nil {
			h.GetWriter().WriteBadRequest(w, err.Error())
			return
		}
	}

	result, err := h.connectorService.CleanDuplicates(r.Context(), integrationID, req.WorkspaceName)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, result, "Duplicate connectors cleaned")
}

// Reconfigure registra o conector novamente com nome e handler atualizados
func (h *ConnectorHandler) Reconfigure(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "reconfigure connector")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req connectorSetupRequest
	if r.ContentLength > 0 {
		if err := h.ParseAndValidateJSON(r, &req); err != nil {
			h.GetWriter().WriteBadRequest(w, err.Error())
			return
		}
	}

	integ, err := h.connectorService.Reconfigure(r.Context(), integrationID, req.WorkspaceName)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "Connector reconfigured")
}

// Status devolve o estado local e remoto do conector
func (h *ConnectorHandler) Status(w http.ResponseWriter, r *http.Request) {
	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	report, err := h.connectorService.Status(r.Context(), integrationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, report)
}

// Check roda o diagnóstico profundo do conector
func (h *ConnectorHandler) Check(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "deep connector check")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	report, err := h.connectorService.Check(r.Context(), integrationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, report)
}

type activateConnectorRequest struct {
	LineID string `json:"lineId" validate:"required"`
	// nil = ligar; a ausência do campo mantém o comportamento de ativação
	Active *bool `json:"active"`
}

// Activate liga ou desliga o conector para uma linha aberta
func (h *ConnectorHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "activate connector")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req activateConnectorRequest
	if err := h.ParseAndValidateJSON(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	active := req.Active == nil || *req.Active
	integ, err := h.connectorService.Activate(r.Context(), integrationID, req.LineID, active)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "Connector activation updated")
}

// ListChannels lista as linhas abertas do portal. Com
// ?include_connector_status=true cada linha traz o estado do conector.
func (h *ConnectorHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	includeStatus, _ := strconv.ParseBool(h.GetQueryString(r, "include_connector_status"))

	channels, err := h.connectorService.ListChannels(r.Context(), integrationID, includeStatus)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, channels)
}

type createChannelRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// CreateChannel cria uma nova linha aberta no portal
func (h *ConnectorHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "create open line")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req createChannelRequest
	if err := h.ParseAndValidateJSON(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	channel, err := h.connectorService.CreateChannel(r.Context(), integrationID, req.Name)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteCreated(w, channel, "Open line created")
}
