package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/api/response"
	"github.com/xpmail/formhub/internal/models"
)

// PublicFormReader loads form definitions for respondents.
type PublicFormReader interface {
	GetPublicForm(ctx context.Context, id uuid.UUID) (*models.Form, error)
}

// Submitter runs the submission flow.
type Submitter interface {
	Submit(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.SubmissionResult, error)
}

// PublicHandler serves the unauthenticated respondent endpoints.
type PublicHandler struct {
	forms     PublicFormReader
	submitter Submitter
}

// NewPublicHandler creates a new public handler.
func NewPublicHandler(forms PublicFormReader, submitter Submitter) *PublicHandler {
	return &PublicHandler{forms: forms, submitter: submitter}
}

// GetForm handles GET /public/forms/{id}. Owner and notification settings are never exposed.
func (h *PublicHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		// invalid ids are indistinguishable from unknown ones for respondents
		response.RespondNotFound(w, "Form not found")

		return
	}

	form, err := h.forms.GetPublicForm(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Form", "load public form")

		return
	}

	response.RespondJSON(w, http.StatusOK, form.Public())
}

// Submit handles POST /public/forms/{id}/responses.
func (h *PublicHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondNotFound(w, "Form not found")

		return
	}

	var req models.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.WarnContext(r.Context(), "Invalid submission body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	result, err := h.submitter.Submit(r.Context(), id, req.Answers)
	if err != nil {
		respondServiceError(w, r, err, "Form", "submit response")

		return
	}

	response.RespondJSON(w, http.StatusCreated, result)
}
