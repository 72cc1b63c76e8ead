package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"crm-hub/internal/domain"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-]{6,20}$`)

// Validator wraps the go-playground validator with the CRM rules.
// It satisfies echo.Validator.
type Validator struct {
	validator *validator.Validate
}

// New creates a validator with the custom rules registered.
func New() *Validator {
	validate := validator.New()

	registerCustomValidators(validate)

	// Report JSON field names in messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validator: validate}
}

// Validate validates a struct. Field failures are reported as *ValidationError.
func (v *Validator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return NewValidationError(fieldErrs)
	}
	return err
}

// ValidateVar validates a single value against tag.
func (v *Validator) ValidateVar(field any, tag string) error {
	return v.validator.Var(field, tag)
}

// ValidationError maps JSON field names to user-facing messages.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, e.Errors[field])
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, ", "))
}

// NewValidationError converts validator field errors.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	messages := make(map[string]string, len(errs))

	for _, err := range errs {
		field := err.Field()

		switch err.Tag() {
		case "required":
			messages[field] = fmt.Sprintf("%s is required", field)
		case "email":
			messages[field] = fmt.Sprintf("%s must be a valid email address", field)
		case "min":
			messages[field] = fmt.Sprintf("%s must be at least %s characters long", field, err.Param())
		case "max":
			messages[field] = fmt.Sprintf("%s must be at most %s characters long", field, err.Param())
		case "uuid":
			messages[field] = fmt.Sprintf("%s must be a valid UUID", field)
		case "phone":
			messages[field] = fmt.Sprintf("%s must be a phone number", field)
		case "auth_event_kind":
			messages[field] = fmt.Sprintf("%s is not a known auth event", field)
		default:
			messages[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	return &ValidationError{Errors: messages}
}

func registerCustomValidators(validate *validator.Validate) {
	// Digits with optional leading +, spaces, dashes and parentheses.
	_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})

	_ = validate.RegisterValidation("auth_event_kind", func(fl validator.FieldLevel) bool {
		return domain.AuthEventKind(fl.Field().String()).Valid()
	})
}
