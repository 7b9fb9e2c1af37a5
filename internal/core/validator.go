package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"gradboard/internal/types"
)

// Validator wraps go-playground/validator and translates its failures into
// AppErrors with per-field details, so that handlers return a consistent
// validation error shape.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers domain-specific rules.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// application_status validates Application.Status transitions input.
	_ = v.RegisterValidation("application_status", func(fl validator.FieldLevel) bool {
		return types.ValidApplicationStatus(types.ApplicationStatus(fl.Field().String()))
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its `validate` tags and
// returns an AppError describing every failing field, or nil when valid.
func (v *Validator) ValidateStruct(s interface{}) *types.AppError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation target is not a struct", err)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "unexpected validation failure", err)
	}

	details := make(map[string]any, len(fieldErrs))
	code := types.ErrCodeValidationInvalidField
	for _, fe := range fieldErrs {
		field := fieldName(fe)
		details[field] = fieldMessage(fe)
		if fe.Tag() == "required" {
			code = types.ErrCodeValidationMissingField
		}
		if fe.Tag() == "email" {
			code = types.ErrCodeValidationInvalidEmail
		}
	}

	return types.NewAppErrorWithDetails(code, "request validation failed", err, details)
}

// fieldName reports the failing field in snake_case to match JSON field
// names in request bodies.
func fieldName(fe validator.FieldError) string {
	return toSnake(fe.Field())
}

// fieldMessage produces a human-readable description of a single failure.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "application_status":
		return "must be a valid application status"
	default:
		return fmt.Sprintf("failed validation rule %q", fe.Tag())
	}
}

// toSnake converts an exported Go field name to snake_case. Acronym runs
// stay together, so PositionID becomes position_id rather than position_i_d.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
