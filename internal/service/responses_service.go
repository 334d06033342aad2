package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
)

// DefaultCountConcurrency bounds the per-form count fan-out of TotalSubmissions.
const DefaultCountConcurrency = 8

// ResponsesRepository defines the interface for response data access.
type ResponsesRepository interface {
	Append(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.Response, error)
	CountByForm(ctx context.Context, formID uuid.UUID) (int64, error)
	ListByForm(ctx context.Context, formID uuid.UUID, filters *models.ListResponsesFilters) ([]models.Response, error)
}

// formLookup is the part of the forms repository the response service needs.
type formLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error)
	ListIDsByOwner(ctx context.Context, ownerID string) ([]uuid.UUID, error)
}

// ResponsesService handles business logic for responses.
type ResponsesService struct {
	repo          ResponsesRepository
	forms         formLookup
	maxConcurrent int
}

// NewResponsesService creates a new responses service. maxConcurrent <= 0 selects DefaultCountConcurrency.
func NewResponsesService(repo ResponsesRepository, forms formLookup, maxConcurrent int) *ResponsesService {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultCountConcurrency
	}

	return &ResponsesService{repo: repo, forms: forms, maxConcurrent: maxConcurrent}
}

// AppendResponse stores a submission for formID. Anyone may append; the form's existence is the caller's check.
func (s *ResponsesService) AppendResponse(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.Response, error) {
	if formID == uuid.Nil {
		return nil, huberrors.NewValidationError("form_id", "form id is required")
	}

	if answers == nil {
		answers = models.Answers{}
	}

	return s.repo.Append(ctx, formID, answers)
}

// CountResponses returns the number of responses stored for formID.
func (s *ResponsesService) CountResponses(ctx context.Context, formID uuid.UUID) (int64, error) {
	return s.repo.CountByForm(ctx, formID)
}

// CountOwnedResponses is CountResponses restricted to the form's owner.
func (s *ResponsesService) CountOwnedResponses(ctx context.Context, formID uuid.UUID, ownerID string) (*models.ResponseCount, error) {
	if err := s.checkOwner(ctx, formID, ownerID); err != nil {
		return nil, err
	}

	count, err := s.repo.CountByForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	return &models.ResponseCount{FormID: formID, Count: count}, nil
}

// ListResponses lists a form's responses, newest first, for the form's owner.
func (s *ResponsesService) ListResponses(ctx context.Context, formID uuid.UUID, ownerID string, filters *models.ListResponsesFilters) (*models.ListResponsesResponse, error) {
	if err := s.checkOwner(ctx, formID, ownerID); err != nil {
		return nil, err
	}

	if filters == nil {
		filters = &models.ListResponsesFilters{}
	}

	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	responses, err := s.repo.ListByForm(ctx, formID, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountByForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	return &models.ListResponsesResponse{
		Data:   responses,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// TotalSubmissions sums response counts across every form of ownerID.
// Forms whose count fails are logged and reported in FailedForms; they never fail the call.
func (s *ResponsesService) TotalSubmissions(ctx context.Context, ownerID string) models.SubmissionTotals {
	ids, err := s.forms.ListIDsByOwner(ctx, ownerID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to list forms for submission total", "owner_id", ownerID, "error", err)

		return models.SubmissionTotals{Partial: true}
	}

	if len(ids) == 0 {
		return models.SubmissionTotals{}
	}

	var (
		total  atomic.Int64
		failed atomic.Int64
		g      errgroup.Group
	)

	g.SetLimit(s.maxConcurrent)

	for _, id := range ids {
		g.Go(func() error {
			n, err := s.repo.CountByForm(ctx, id)
			if err != nil {
				failed.Add(1)
				slog.WarnContext(ctx, "Failed to count responses for form", "form_id", id, "error", err)

				return nil
			}

			total.Add(n)

			return nil
		})
	}

	_ = g.Wait()

	return models.SubmissionTotals{
		Total:       total.Load(),
		Forms:       len(ids),
		FailedForms: int(failed.Load()),
		Partial:     failed.Load() > 0,
	}
}

func (s *ResponsesService) checkOwner(ctx context.Context, formID uuid.UUID, ownerID string) error {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return err
	}

	if ownerID == "" || form.OwnerID != ownerID {
		return huberrors.NewForbiddenError("you do not own this form")
	}

	return nil
}
