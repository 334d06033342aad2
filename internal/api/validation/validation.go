// Package validation provides request validation and custom validators.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/xpmail/formhub/internal/api/response"
	"github.com/xpmail/formhub/internal/huberrors"
)

// MaxOwnerIDLength bounds the X-User-ID header.
const MaxOwnerIDLength = 128

var (
	// validate and decoder are package-level singletons that are safe for concurrent
	// read-only access. All registrations MUST happen in init() only, as those
	// methods are NOT thread-safe.
	validate *validator.Validate
	decoder  *form.Decoder
)

func init() {
	validate = validator.New()
	decoder = form.NewDecoder()

	if err := validate.RegisterValidation("no_null_bytes", validateNoNullBytes); err != nil {
		slog.Error("Failed to register no_null_bytes validator", "error", err)
	}

	if err := validate.RegisterValidation("no_whitespace", validateNoWhitespace); err != nil {
		slog.Error("Failed to register no_whitespace validator", "error", err)
	}
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// ValidateOwnerID checks an owner id supplied by the identity front end.
func ValidateOwnerID(ownerID string) error {
	tag := fmt.Sprintf("required,max=%d,no_null_bytes,no_whitespace", MaxOwnerIDLength)
	if err := validate.Var(ownerID, tag); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("X-User-ID %s", strings.TrimPrefix(formatFieldError(fieldErrs[0]), " "))
		}

		return fmt.Errorf("invalid X-User-ID: %w", err)
	}

	return nil
}

// formatValidationErrors converts validator errors to a formatted error message.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, formatFieldError(fieldError))
		}

		return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
	}

	return err
}

// formatFieldError formats a single field validation error.
func formatFieldError(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
	case "no_null_bytes":
		return field + " must not contain NULL bytes"
	case "no_whitespace":
		return field + " must not contain whitespace"
	default:
		return field + " is invalid"
	}
}

// GetValidationErrorDetails extracts field-level error details from validator or domain validation errors.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var details []response.ErrorDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			details = append(details, response.ErrorDetail{
				Location: fieldError.Field(),
				Message:  formatFieldError(fieldError),
				Value:    fieldError.Value(),
			})
		}

		return details
	}

	var domainErrs huberrors.ValidationErrors
	if errors.As(err, &domainErrs) {
		for _, fe := range domainErrs {
			details = append(details, response.ErrorDetail{Location: fe.Field, Message: fe.Message})
		}

		return details
	}

	var single *huberrors.ValidationError
	if errors.As(err, &single) && single.Field != "" {
		details = append(details, response.ErrorDetail{Location: single.Field, Message: single.Message})
	}

	return details
}

// RespondValidationError writes a 400 validation error with one entry per invalid field.
func RespondValidationError(w http.ResponseWriter, err error) {
	response.RespondProblem(w, response.ProblemDetails{
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: GetValidationErrorDetails(err),
	})
}

// DecodeQueryParams decodes URL query parameters into a struct.
func DecodeQueryParams(r *http.Request, dst any) error {
	if err := decoder.Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("failed to decode query parameters: %w", err)
	}

	return nil
}

// ValidateAndDecodeQueryParams decodes and validates query parameters in one step.
func ValidateAndDecodeQueryParams(r *http.Request, dst any) error {
	if err := DecodeQueryParams(r, dst); err != nil {
		return err
	}

	return ValidateStruct(dst)
}

// validateNoNullBytes checks that a string field does not contain NULL bytes.
// Handles both string and *string types.
func validateNoNullBytes(fl validator.FieldLevel) bool {
	field := fl.Field()

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}

		field = field.Elem()
	}

	if field.Kind() != reflect.String {
		return true
	}

	return !strings.Contains(field.String(), "\x00")
}

func validateNoWhitespace(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return true
	}

	return !strings.ContainsAny(field.String(), " \t\r\n")
}
