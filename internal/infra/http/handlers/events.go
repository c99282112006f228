package handlers

import (
	"net/http"

	"zpbitrix/internal/infra/http/shared"
	"zpbitrix/platform/logger"
)

// EventsHandler recebe as chamadas que o próprio portal dispara: abertura do
// placement de configuração e eventos de bot. Ambos chegam form-encoded.
type EventsHandler struct {
	*shared.BaseHandler
}

// NewEventsHandler cria nova instância do handler de eventos do portal
func NewEventsHandler(logger *logger.Logger) *EventsHandler {
	return &EventsHandler{
		BaseHandler: shared.NewBaseHandler(logger),
	}
}

// Placement atende a abertura da página de configuração do conector dentro
// do portal. O diagnóstico de placement dispara uma requisição sintética
// contra esta rota, então ela precisa responder mesmo sem sessão.
func (h *EventsHandler) Placement(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.GetWriter().WriteBadRequest(w, "invalid placement payload")
		return
	}

	h.GetLogger().InfoWithFields("Placement opened", map[string]interface{}{
		"domain":    r.Form.Get("DOMAIN"),
		"member_id": r.Form.Get("member_id"),
		"placement": r.Form.Get("PLACEMENT"),
	})

	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"placement": r.Form.Get("PLACEMENT"),
		"ready":     true,
	})
}

// BotEvent confirma o recebimento de eventos de bot do portal. O roteamento
// de mensagens em si pertence ao lado de mensageria.
func (h *EventsHandler) BotEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.GetWriter().WriteBadRequest(w, "invalid bot event payload")
		return
	}

	event := r.Form.Get("event")
	h.GetLogger().DebugWithFields("Bot event received", map[string]interface{}{
		"event":  event,
		"domain": r.Form.Get("auth[domain]"),
	})

	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"received": true,
		"event":    event,
	})
}
