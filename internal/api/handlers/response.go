package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/api/response"
	"github.com/xpmail/formhub/internal/api/validation"
	"github.com/xpmail/formhub/internal/huberrors"
)

const unexpectedError = "An unexpected error occurred"

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}

	return nil
}

// pathID parses the {id} path value. On failure it writes the response and returns false.
func pathID(w http.ResponseWriter, r *http.Request, resource string) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		response.RespondBadRequest(w, resource+" ID is required")

		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")

		return uuid.Nil, false
	}

	return id, true
}

// respondServiceError maps a service error onto its problem response. op names the failed action for logs.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, resource, op string) {
	var incomplete *huberrors.IncompleteError

	var indexMissing *huberrors.IndexMissingError

	switch {
	case errors.Is(err, huberrors.ErrValidation):
		validation.RespondValidationError(w, err)
	case errors.Is(err, huberrors.ErrNotFound):
		response.RespondNotFound(w, resource+" not found")
	case errors.Is(err, huberrors.ErrForbidden):
		response.RespondForbidden(w, "You do not have access to this "+strings.ToLower(resource))
	case errors.As(err, &incomplete):
		details := make([]response.ErrorDetail, 0, len(incomplete.Missing))
		for _, q := range incomplete.Missing {
			details = append(details, response.ErrorDetail{Location: "answers", Message: "Please answer: " + q, Value: q})
		}

		response.RespondUnprocessableEntity(w, "Please answer all required questions", details)
	case errors.Is(err, huberrors.ErrResponsePersist):
		slog.ErrorContext(r.Context(), "Failed to store response", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondServiceUnavailable(w, "Your response could not be saved. Please try again.")
	case errors.As(err, &indexMissing):
		slog.ErrorContext(r.Context(), "Required database index is missing",
			"method", r.Method,
			"path", r.URL.Path,
			"index", indexMissing.Index,
			"detail", indexMissing.Detail,
		)
		response.RespondInternalServerError(w, unexpectedError)
	default:
		slog.ErrorContext(r.Context(), "Failed to "+op, "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, unexpectedError)
	}
}
