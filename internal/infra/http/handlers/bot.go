package handlers

import (
	"net/http"

	"zpbitrix/internal/core/bot"
	"zpbitrix/internal/infra/http/shared"
	"zpbitrix/platform/logger"
)

// BotHandler implementa handlers REST para bot, robô e provedor SMS
type BotHandler struct {
	*shared.BaseHandler
	botService *bot.Service
}

// NewBotHandler cria nova instância do handler de bot
func NewBotHandler(botService *bot.Service, logger *logger.Logger) *BotHandler {
	return &BotHandler{
		BaseHandler: shared.NewBaseHandler(logger),
		botService:  botService,
	}
}

type registerBotRequest struct {
	Name           string `json:"name" validate:"omitempty,max=255"`
	WelcomeMessage string `json:"welcomeMessage" validate:"omitempty,max=2000"`
}

// RegisterBot registra o chat bot no portal
func (h *BotHandler) RegisterBot(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "register bot")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	var req registerBotRequest
	if r.ContentLength > 0 {
		if err := h.ParseAndValidateJSON(r, &req); err != nil {
			h.GetWriter().WriteBadRequest(w, err.Error())
			return
		}
	}

	integ, err := h.botService.RegisterBot(r.Context(), integrationID, bot.Options{
		Name:           req.Name,
		WelcomeMessage: req.WelcomeMessage,
	})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "Bot registered")
}

// UnregisterBot remove o chat bot do portal
func (h *BotHandler) UnregisterBot(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "unregister bot")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	if err := h.botService.UnregisterBot(r.Context(), integrationID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, nil, "Bot removed")
}

// RegisterRobot registra o handler de automação no portal
func (h *BotHandler) RegisterRobot(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "register robot")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	integ, err := h.botService.RegisterRobot(r.Context(), integrationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "Robot registered")
}

// UnregisterRobot remove o handler de automação do portal
func (h *BotHandler) UnregisterRobot(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "unregister robot")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	if err := h.botService.UnregisterRobot(r.Context(), integrationID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, nil, "Robot removed")
}

// RegisterSMSProvider registra a integração como provedor de mensagens do CRM
func (h *BotHandler) RegisterSMSProvider(w http.ResponseWriter, r *http.Request) {
	h.LogRequest(r, "register sms provider")

	integrationID, err := h.GetIntegrationIDFromURL(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, err.Error())
		return
	}

	integ, err := h.botService.RegisterSMSProvider(r.Context(), integrationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.GetWriter().WriteSuccess(w, integ, "SMS provider registered")
}
