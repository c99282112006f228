package handlers

import (
	"net/http"
	"time"

	"zpbitrix/internal/infra/http/shared"
	"zpbitrix/platform/database"
	"zpbitrix/platform/logger"
)

// HealthHandler implementa os endpoints de health check
type HealthHandler struct {
	*shared.BaseHandler
	db        *database.Database
	startedAt time.Time
}

// NewHealthHandler cria nova instância do health handler
func NewHealthHandler(db *database.Database, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		BaseHandler: shared.NewBaseHandler(logger),
		db:          db,
		startedAt:   time.Now(),
	}
}

// GetHealth responde o status geral do serviço
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startedAt).Round(time.Second)
	response := shared.NewHealthResponse("zpbitrix", "1.0.0", uptime.String())
	h.GetWriter().WriteSuccess(w, response)
}

// GetDatabaseHealth verifica a conectividade com o banco
func (h *HealthHandler) GetDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	check := h.db.PerformHealthCheck(r.Context())
	if check.Status != "healthy" {
		h.GetLogger().ErrorWithFields("Database health check failed", map[string]interface{}{
			"status": check.Status,
			"error":  check.Error,
		})
		h.GetWriter().WriteError(w, http.StatusServiceUnavailable, "database unreachable", check)
		return
	}

	h.GetWriter().WriteSuccess(w, check)
}
