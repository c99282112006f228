package handlers

import (
	"net/http"

	"zpbitrix/internal/core/setup"
	"zpbitrix/internal/infra/http/shared"
	"zpbitrix/platform/logger"
)

// SetupHandler implementa handlers REST para orquestração e diagnóstico
type SetupHandler struct {
	*shared.BaseHandler
	setupService *setup.Service
}

// NewSetupHandler cria nova instância do handler de setup
func NewSetupHandler(setupService *setup.Service, logger *logger.Logger) *SetupHandler {
	return &SetupHandler{
		BaseHandler:  shared.NewBaseHandler(logger),
		setupService: setupService,
	}
}

// AutoSetup roda a sequência completa de registro no portal
func (h *SetupHandler) AutoSetup(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "auto setup")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req setup.AutoSetupRequest
	if r.ContentLength > 0 {
		if err := h.ParseJSONBody(r, &req); err != nil {
			h.GetWriter().WriteBadRequest(w, err.Error())
			return
		}
	}

	result, err := h.setupService.AutoSetup(r.Context(), integrationID, req)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, result)
}

// CompleteSetup finaliza um canal: ativação da linha e mapeamento da instância
func (h *SetupHandler) CompleteSetup(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "complete setup")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req setup.CompleteSetupRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.setupService.CompleteSetup(r.Context(), integrationID, req)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, result)
}

type simulatePlacementRequest struct {
	HandlerURL string `json:"handlerUrl" validate:"omitempty,url"`
}

// SimulatePlacement dispara uma requisição de placement sintética. Sem corpo,
// o alvo é o handler de placement configurado do próprio serviço.
func (h *SetupHandler) SimulatePlacement(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "simulate placement")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req simulatePlacementRequest
	if r.ContentLength > 0 {
		if err := h.ParseAndValidateJSON(r, &req); err != nil {
			h.GetWriter().WriteBadRequest(w, err.Error())
			return
		}
	}

	report, err := h.setupService.SimulatePlacement(r.Context(), integrationID, req.HandlerURL)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, report)
}
