package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wrapper para go-playground/validator com funcionalidades customizadas
type Validator struct {
	validate *validator.Validate
}

// New cria nova instância do validador
func New() *Validator {
	validate := validator.New()

	// Registrar validações customizadas
	registerCustomValidations(validate)

	// Configurar nomes de campos usando tags JSON
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct valida uma struct
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// ValidateVar valida uma variável individual
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// formatValidationError formata erros de validação para serem mais legíveis
func (v *Validator) formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string

		for _, fieldError := range validationErrors {
			message := v.getErrorMessage(fieldError)
			messages = append(messages, message)
		}

		return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
	}

	return err
}

// getErrorMessage retorna mensagem de erro personalizada para cada tipo de validação
func (v *Validator) getErrorMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()
	tag := fieldError.Tag()
	param := fieldError.Param()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "portal_domain":
		return fmt.Sprintf("%s must be a valid portal domain (e.g. empresa.bitrix24.com.br)", field)
	case "connector_code":
		return fmt.Sprintf("%s contains invalid characters (only lowercase alphanumeric and underscore allowed)", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// registerCustomValidations registra validações customizadas
func registerCustomValidations(validate *validator.Validate) {
	// Validação para domínio de portal
	validate.RegisterValidation("portal_domain", validatePortalDomain)

	// Validação para código de conector
	validate.RegisterValidation("connector_code", validateConnectorCode)
}

// validatePortalDomain valida domínio de portal (hostname sem esquema ou path)
func validatePortalDomain(fl validator.FieldLevel) bool {
	domain := fl.Field().String()
	if domain == "" || len(domain) > 255 {
		return false
	}
	if strings.Contains(domain, "://") || strings.ContainsAny(domain, "/ ?#") {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}

	for _, char := range domain {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-' || char == '.') {
			return false
		}
	}

	return true
}

// validateConnectorCode valida código de conector (minúsculos, dígitos e underscore)
func validateConnectorCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if code == "" {
		return false
	}

	for _, char := range code {
		if !((char >= 'a' && char <= 'z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}

	return true
}

// IsValidPortalDomain verifica se o domínio de portal é válido
func IsValidPortalDomain(domain string) bool {
	validator := New()
	return validator.ValidateVar(domain, "portal_domain") == nil
}
