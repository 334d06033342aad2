package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/api/middleware"
	"github.com/xpmail/formhub/internal/api/response"
	"github.com/xpmail/formhub/internal/api/validation"
	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
)

// FormsService defines the interface for form definition business logic.
type FormsService interface {
	CreateForm(ctx context.Context, ownerID string, content *models.FormContent) (*models.Form, error)
	GetForm(ctx context.Context, id uuid.UUID) (*models.Form, error)
	ListForms(ctx context.Context, ownerID string, filters *models.ListFormsFilters) (*models.ListFormsResponse, error)
	UpdateForm(ctx context.Context, id uuid.UUID, ownerID string, content *models.FormContent) (*models.Form, error)
	DeleteForm(ctx context.Context, id uuid.UUID, ownerID string) error
}

// FormsHandler handles owner requests for form definitions.
type FormsHandler struct {
	service FormsService
}

// NewFormsHandler creates a new forms handler.
func NewFormsHandler(service FormsService) *FormsHandler {
	return &FormsHandler{service: service}
}

// Create handles POST /v1/forms.
func (h *FormsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var content models.FormContent
	if err := decodeJSON(r, &content); err != nil {
		slog.WarnContext(r.Context(), "Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	form, err := h.service.CreateForm(r.Context(), middleware.OwnerID(r.Context()), &content)
	if err != nil {
		respondServiceError(w, r, err, "Form", "create form")

		return
	}

	response.RespondJSON(w, http.StatusCreated, form)
}

// Get handles GET /v1/forms/{id}. Only the owner may read the full definition.
func (h *FormsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Form")
	if !ok {
		return
	}

	form, err := h.service.GetForm(r.Context(), id)
	if err == nil && form.OwnerID != middleware.OwnerID(r.Context()) {
		err = huberrors.NewForbiddenError("not the form owner")
	}

	if err != nil {
		respondServiceError(w, r, err, "Form", "get form")

		return
	}

	response.RespondJSON(w, http.StatusOK, form)
}

// List handles GET /v1/forms.
func (h *FormsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListFormsFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	result, err := h.service.ListForms(r.Context(), middleware.OwnerID(r.Context()), filters)
	if err != nil {
		respondServiceError(w, r, err, "Form", "list forms")

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Update handles PUT /v1/forms/{id}. The body replaces the whole definition.
func (h *FormsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Form")
	if !ok {
		return
	}

	var content models.FormContent
	if err := decodeJSON(r, &content); err != nil {
		slog.WarnContext(r.Context(), "Invalid request body for update", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	form, err := h.service.UpdateForm(r.Context(), id, middleware.OwnerID(r.Context()), &content)
	if err != nil {
		respondServiceError(w, r, err, "Form", "update form")

		return
	}

	response.RespondJSON(w, http.StatusOK, form)
}

// Delete handles DELETE /v1/forms/{id}.
func (h *FormsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Form")
	if !ok {
		return
	}

	if err := h.service.DeleteForm(r.Context(), id, middleware.OwnerID(r.Context())); err != nil {
		respondServiceError(w, r, err, "Form", "delete form")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
