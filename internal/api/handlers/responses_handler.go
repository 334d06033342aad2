package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/api/middleware"
	"github.com/xpmail/formhub/internal/api/response"
	"github.com/xpmail/formhub/internal/api/validation"
	"github.com/xpmail/formhub/internal/models"
)

// ResponsesService defines the owner-facing response reads.
type ResponsesService interface {
	ListResponses(ctx context.Context, formID uuid.UUID, ownerID string, filters *models.ListResponsesFilters) (*models.ListResponsesResponse, error)
	CountOwnedResponses(ctx context.Context, formID uuid.UUID, ownerID string) (*models.ResponseCount, error)
	TotalSubmissions(ctx context.Context, ownerID string) models.SubmissionTotals
}

// ResponsesHandler handles owner requests for collected responses.
type ResponsesHandler struct {
	service ResponsesService
}

// NewResponsesHandler creates a new responses handler.
func NewResponsesHandler(service ResponsesService) *ResponsesHandler {
	return &ResponsesHandler{service: service}
}

// List handles GET /v1/forms/{id}/responses.
func (h *ResponsesHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Form")
	if !ok {
		return
	}

	filters := &models.ListResponsesFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	result, err := h.service.ListResponses(r.Context(), id, middleware.OwnerID(r.Context()), filters)
	if err != nil {
		respondServiceError(w, r, err, "Form", "list responses")

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Count handles GET /v1/forms/{id}/responses/count.
func (h *ResponsesHandler) Count(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Form")
	if !ok {
		return
	}

	count, err := h.service.CountOwnedResponses(r.Context(), id, middleware.OwnerID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Form", "count responses")

		return
	}

	response.RespondJSON(w, http.StatusOK, count)
}

// Totals handles GET /v1/stats/submissions. Always 200; partial results are flagged in the body.
func (h *ResponsesHandler) Totals(w http.ResponseWriter, r *http.Request) {
	response.RespondJSON(w, http.StatusOK, h.service.TotalSubmissions(r.Context(), middleware.OwnerID(r.Context())))
}
