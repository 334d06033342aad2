package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
	"github.com/xpmail/formhub/internal/observability"
)

// ThankYouMessage is returned to the respondent once a submission is stored.
const ThankYouMessage = "Thank you! Your response has been recorded."

type publicFormLoader interface {
	GetPublicForm(ctx context.Context, id uuid.UUID) (*models.Form, error)
}

type responseAppender interface {
	AppendResponse(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.Response, error)
}

// Notifier makes the single notification attempt for a stored submission.
type Notifier interface {
	Dispatch(ctx context.Context, form *models.Form, answers models.Answers) *models.NotificationOutcome
}

// SubmissionService runs the public submission flow: load, check required answers, store, notify.
type SubmissionService struct {
	forms     publicFormLoader
	responses responseAppender
	notifier  Notifier
	metrics   observability.FormMetrics
}

// NewSubmissionService creates a submission service. notifier and metrics may be nil.
func NewSubmissionService(forms publicFormLoader, responses responseAppender, notifier Notifier, metrics observability.FormMetrics) *SubmissionService {
	return &SubmissionService{forms: forms, responses: responses, notifier: notifier, metrics: metrics}
}

// Submit stores answers as a response to formID and notifies the owner.
//
// Errors: ErrFormNotFound when the form does not exist or is deleted before the store write,
// ValidationErrors when an answer's shape does not fit its question, IncompleteError when required
// questions are unanswered (nothing is stored), ResponsePersistError when the store write fails. A
// failed notification is reported in the result and never returned as an error.
func (s *SubmissionService) Submit(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.SubmissionResult, error) {
	form, err := s.forms.GetPublicForm(ctx, formID)
	if err != nil {
		if errors.Is(err, huberrors.ErrNotFound) {
			s.record(ctx, observability.SubmissionFormNotFound)

			return nil, huberrors.ErrFormNotFound
		}

		return nil, err
	}

	kept, verrs := answersForForm(form, answers)
	if len(verrs) > 0 {
		s.record(ctx, observability.SubmissionInvalid)

		return nil, verrs
	}

	if missing := unansweredRequired(form.Questions, kept); len(missing) > 0 {
		s.record(ctx, observability.SubmissionIncomplete)

		return nil, huberrors.NewIncompleteError(missing)
	}

	resp, err := s.responses.AppendResponse(ctx, form.ID, kept)
	if errors.Is(err, huberrors.ErrFormNotFound) {
		s.record(ctx, observability.SubmissionFormNotFound)

		return nil, huberrors.ErrFormNotFound
	}

	if err != nil {
		s.record(ctx, observability.SubmissionPersistFailed)
		slog.ErrorContext(ctx, "Failed to store response", "form_id", form.ID, "error", err)

		return nil, huberrors.NewResponsePersistError(err)
	}

	s.record(ctx, observability.SubmissionAccepted)

	result := &models.SubmissionResult{
		ResponseID:  resp.ID,
		SubmittedAt: resp.SubmittedAt,
		Message:     ThankYouMessage,
	}

	if s.notifier != nil {
		// the response is stored; a client disconnect must not abort the owner notification
		result.Notification = s.notifier.Dispatch(context.WithoutCancel(ctx), form, kept)
	}

	return result, nil
}

func (s *SubmissionService) record(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(ctx, outcome)
	}
}

// answersForForm drops answers keyed by ids that are not questions of form and rejects answers
// whose shape does not fit the question: a list for multi-choice, a single value otherwise.
// Missing answers are left to the required check.
func answersForForm(form *models.Form, answers models.Answers) (models.Answers, huberrors.ValidationErrors) {
	kept := make(models.Answers, len(form.Questions))

	var errs huberrors.ValidationErrors

	for _, q := range form.Questions {
		a, ok := answers[q.ID]
		if !ok {
			continue
		}

		if !a.IsMissing() && a.IsMulti() != q.Type.TakesList() {
			msg := "answer must be a single value"
			if q.Type.TakesList() {
				msg = "answer must be a list of selections"
			}

			errs = append(errs, huberrors.NewValidationError(fmt.Sprintf("answers.%s", q.ID), msg))

			continue
		}

		kept[q.ID] = a
	}

	return kept, errs
}

// unansweredRequired returns the text of each required question without an answer, in form order.
func unansweredRequired(questions []models.Question, answers models.Answers) []string {
	var missing []string

	for _, q := range questions {
		if !q.IsRequired {
			continue
		}

		if a, ok := answers[q.ID]; !ok || a.IsMissing() {
			missing = append(missing, q.Text)
		}
	}

	return missing
}
