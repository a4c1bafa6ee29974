package dto

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Validator wraps go-playground validator with the helpdesk rules.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the custom rules.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("ticket_status", validateTicketStatus)
	_ = v.RegisterValidation("ticket_priority", validateTicketPriority)
	_ = v.RegisterValidation("staff_role", validateStaffRole)
	_ = v.RegisterValidation("date_key", validateDateKey)

	return &Validator{validate: v}
}

// Validate checks s and reports failures as a validation DomainError whose
// details map each field to the rule it broke.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperrors.NewValidationError("request validation failed", details)
}

func validateTicketStatus(fl validator.FieldLevel) bool {
	return domain.TicketStatus(fl.Field().String()).Valid()
}

func validateTicketPriority(fl validator.FieldLevel) bool {
	return domain.TicketPriority(fl.Field().String()).Valid()
}

func validateStaffRole(fl validator.FieldLevel) bool {
	return domain.Role(fl.Field().String()).Staff()
}

func validateDateKey(fl validator.FieldLevel) bool {
	_, err := time.Parse(domain.DateKeyLayout, fl.Field().String())
	return err == nil
}
