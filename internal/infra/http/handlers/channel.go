package handlers

import (
	"net/http"

	"zpbitrix/internal/core/channel"
	"zpbitrix/internal/infra/http/shared"
	"zpbitrix/platform/logger"
)

// ChannelHandler implementa handlers REST para mapeamentos instância/linha
type ChannelHandler struct {
	*shared.BaseHandler
	channelService *channel.Service
}

// NewChannelHandler cria nova instância do handler de canais
func NewChannelHandler(channelService *channel.Service, logger *logger.Logger) *ChannelHandler {
	return &ChannelHandler{
		BaseHandler:    shared.NewBaseHandler(logger),
		channelService: channelService,
	}
}

// ListMappings lista os mapeamentos da integração
func (h *ChannelHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	mappings, err := h.channelService.ListMappings(r.Context(), integrationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, mappings)
}

type addMappingRequest struct {
	InstanceID string `json:"instanceId" validate:"required,min=1,max=255"`
	LineID     string `json:"lineId" validate:"required"`
	LineName   string `json:"lineName" validate:"omitempty,max=255"`
}

// AddMapping vincula uma instância a uma linha aberta
func (h *ChannelHandler) AddMapping(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "add channel mapping")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req addMappingRequest
	if err := h.ParseAndValidateJSON(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	mapping, err := h.channelService.AddMapping(r.Context(), integrationID, req.InstanceID, req.LineID, req.LineName)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteCreated(w, mapping, "Channel mapping created")
}

// RemoveMapping desativa um mapeamento
func (h *ChannelHandler) RemoveMapping(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "remove channel mapping")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	mappingID, err := h.GetUUIDParam(r, "mappingId")
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	if err := h.channelService.RemoveMapping(r.Context(), integrationID, mappingID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, nil, "Channel mapping removed")
}
