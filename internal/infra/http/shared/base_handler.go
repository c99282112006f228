package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zpbitrix/internal/core/channel"
	"zpbitrix/internal/core/integration"
	"zpbitrix/internal/core/shared/validation"
	"zpbitrix/internal/ports"
	apperrors "zpbitrix/pkg/errors"
	"zpbitrix/platform/logger"
)

// BaseHandler fornece funcionalidades comuns para todos os handlers HTTP
type BaseHandler struct {
	logger    *logger.Logger
	writer    *ResponseWriter
	validator *validation.Validator
}

// NewBaseHandler cria nova instância do base handler
func NewBaseHandler(logger *logger.Logger) *BaseHandler {
	return &BaseHandler{
		logger:    logger,
		writer:    NewResponseWriter(logger),
		validator: validation.New(),
	}
}

// GetLogger retorna logger do handler
func (h *BaseHandler) GetLogger() *logger.Logger {
	return h.logger
}

// GetWriter retorna response writer
func (h *BaseHandler) GetWriter() *ResponseWriter {
	return h.writer
}

// GetValidator retorna validator
func (h *BaseHandler) GetValidator() *validation.Validator {
	return h.validator
}

// ===== URL PARAMETER EXTRACTION =====

// GetIntegrationIDFromURL extrai integration ID da URL
func (h *BaseHandler) GetIntegrationIDFromURL(r *http.Request) (uuid.UUID, error) {
	integrationIDStr := chi.URLParam(r, "integrationId")
	if integrationIDStr == "" {
		return uuid.Nil, fmt.Errorf("integration ID is required")
	}

	integrationID, err := uuid.Parse(integrationIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid integration ID format: %w", err)
	}

	return integrationID, nil
}

// GetStringParam extrai parâmetro string da URL
func (h *BaseHandler) GetStringParam(r *http.Request, paramName string) (string, error) {
	value := chi.URLParam(r, paramName)
	if value == "" {
		return "", fmt.Errorf("%s is required", paramName)
	}
	return value, nil
}

// GetUUIDParam extrai parâmetro UUID da URL
func (h *BaseHandler) GetUUIDParam(r *http.Request, paramName string) (uuid.UUID, error) {
	valueStr := chi.URLParam(r, paramName)
	if valueStr == "" {
		return uuid.Nil, fmt.Errorf("%s is required", paramName)
	}

	value, err := uuid.Parse(valueStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s format: %w", paramName, err)
	}

	return value, nil
}

// ===== QUERY PARAMETER EXTRACTION =====

// GetQueryString extrai parâmetro string da query
func (h *BaseHandler) GetQueryString(r *http.Request, paramName string, defaultValue ...string) string {
	value := r.URL.Query().Get(paramName)
	if value == "" && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// ===== REQUEST BODY PARSING =====

// ParseJSONBody faz parse do body JSON para struct
func (h *BaseHandler) ParseJSONBody(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is empty")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields() // Rejeitar campos desconhecidos

	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}

	return nil
}

// ParseAndValidateJSON faz parse e validação do body JSON
func (h *BaseHandler) ParseAndValidateJSON(r *http.Request, dest interface{}) error {
	if err := h.ParseJSONBody(r, dest); err != nil {
		return err
	}

	if err := h.validator.ValidateStruct(dest); err != nil {
		return err
	}

	return nil
}

// ===== LOGGING HELPERS =====

// LogRequest registra informações da requisição
func (h *BaseHandler) LogRequest(r *http.Request, operation string) {
	h.logger.InfoWithFields(fmt.Sprintf("Processing %s request", operation), map[string]interface{}{
		"method":     r.Method,
		"path":       r.URL.Path,
		"query":      r.URL.RawQuery,
		"user_agent": r.Header.Get("User-Agent"),
		"ip":         getClientIP(r),
	})
}

// LogSuccess registra sucesso da operação
func (h *BaseHandler) LogSuccess(operation string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["operation"] = operation

	h.logger.InfoWithFields(fmt.Sprintf("%s completed successfully", operation), details)
}

func getClientIP(r *http.Request) string {
	// Verificar headers de proxy
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// ===== ERROR MAPPING =====

// HandleError traduz erros de domínio para o status HTTP correspondente
func (h *BaseHandler) HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound),
		errors.Is(err, integration.ErrIdentityNotFound),
		errors.Is(err, channel.ErrMappingNotFound),
		errors.Is(err, channel.ErrInstanceNotFound):
		h.writer.WriteNotFound(w, err.Error())

	case errors.Is(err, integration.ErrAmbiguousIdentity):
		h.writer.WriteErrorWithCode(w, http.StatusConflict, "AMBIGUOUS_IDENTITY", err.Error())

	case errors.Is(err, channel.ErrMappingConflict):
		h.writer.WriteErrorWithCode(w, http.StatusConflict, "MAPPING_CONFLICT", err.Error())

	case errors.Is(err, channel.ErrInstanceForeign):
		h.writer.WriteErrorWithCode(w, http.StatusForbidden, "INSTANCE_FOREIGN", err.Error())

	case errors.Is(err, integration.ErrStaleWrite):
		h.writer.WriteErrorWithCode(w, http.StatusConflict, "STALE_WRITE", "integration was modified concurrently, retry the operation")

	case errors.Is(err, integration.ErrLinkTokenInvalid):
		h.writer.WriteErrorWithCode(w, http.StatusUnauthorized, "LINK_TOKEN_INVALID", err.Error())

	case errors.Is(err, integration.ErrTokenRefreshFailed):
		h.writer.WriteErrorWithCode(w, http.StatusUnauthorized, "TOKEN_REFRESH_FAILED", "stored refresh token was rejected, re-authorize the portal")

	case errors.Is(err, integration.ErrNotLinked):
		h.writer.WriteErrorWithCode(w, http.StatusUnauthorized, "NOT_LINKED", err.Error())

	default:
		if pe, ok := ports.AsPortalError(err); ok {
			if ports.IsTokenError(err) {
				h.writer.WriteErrorWithCode(w, http.StatusUnauthorized, pe.Code, pe.Error())
				return
			}
			h.writer.WriteErrorWithCode(w, http.StatusBadGateway, pe.Code, pe.Error())
			return
		}
		if apperrors.IsAppError(err) {
			appErr := apperrors.GetAppError(err)
			h.writer.WriteError(w, appErr.Code, appErr.Message)
			return
		}
		h.logger.ErrorWithFields("Unhandled error", map[string]interface{}{
			"error": err.Error(),
		})
		h.writer.WriteInternalError(w, "internal server error")
	}
}
