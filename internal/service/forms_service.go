package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/formdef"
	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
	"github.com/xpmail/formhub/internal/observability"
	"github.com/xpmail/formhub/pkg/cache"
)

const (
	cacheNamePublicForm = "public_form"

	defaultListLimit = 100

	// DefaultPublicFormCacheSize and DefaultPublicFormCacheTTL apply when the caller passes zero values.
	DefaultPublicFormCacheSize = 1000
	DefaultPublicFormCacheTTL  = time.Minute
)

// FormsRepository defines the interface for form definition data access.
type FormsRepository interface {
	Create(ctx context.Context, ownerID string, content *models.FormContent) (*models.Form, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error)
	ListByOwner(ctx context.Context, ownerID string, filters *models.ListFormsFilters) ([]models.Form, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	ListIDsByOwner(ctx context.Context, ownerID string) ([]uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, content *models.FormContent) (*models.Form, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FormsService handles business logic for form definitions.
type FormsService struct {
	repo        FormsRepository
	publicForms *cache.LoaderCache[uuid.UUID, *models.Form]
	metrics     observability.FormMetrics
}

// FormsServiceOptions configures the public form cache. Zero values select the defaults.
type FormsServiceOptions struct {
	PublicCacheSize int
	PublicCacheTTL  time.Duration
	// Metrics may be nil.
	Metrics observability.FormMetrics
}

// NewFormsService creates a new forms service.
func NewFormsService(repo FormsRepository, opts FormsServiceOptions) *FormsService {
	size := opts.PublicCacheSize
	if size <= 0 {
		size = DefaultPublicFormCacheSize
	}

	ttl := opts.PublicCacheTTL
	if ttl <= 0 {
		ttl = DefaultPublicFormCacheTTL
	}

	return &FormsService{
		repo:        repo,
		publicForms: cache.NewLoaderCache[uuid.UUID, *models.Form](size, ttl, uuid.UUID.String),
		metrics:     opts.Metrics,
	}
}

// CreateForm validates content and stores it as a new form owned by ownerID.
// Nothing is written when validation fails.
func (s *FormsService) CreateForm(ctx context.Context, ownerID string, content *models.FormContent) (*models.Form, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, huberrors.NewValidationError("owner_id", "owner is required")
	}

	normalized, err := formdef.Normalize(*content)
	if err != nil {
		return nil, err
	}

	return s.repo.Create(ctx, ownerID, &normalized)
}

// GetForm retrieves a single form by ID, bypassing the public cache.
func (s *FormsService) GetForm(ctx context.Context, id uuid.UUID) (*models.Form, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPublicForm retrieves a form for the respondent flow through the public form cache.
func (s *FormsService) GetPublicForm(ctx context.Context, id uuid.UUID) (*models.Form, error) {
	form, hit, err := s.publicForms.GetWithStats(ctx, id, s.repo.GetByID)
	if err != nil {
		return nil, fmt.Errorf("get public form: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCacheLookup(ctx, cacheNamePublicForm, hit)
	}

	return form, nil
}

// ListForms lists the owner's forms, newest first.
func (s *FormsService) ListForms(ctx context.Context, ownerID string, filters *models.ListFormsFilters) (*models.ListFormsResponse, error) {
	if filters == nil {
		filters = &models.ListFormsFilters{}
	}

	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	forms, err := s.repo.ListByOwner(ctx, ownerID, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return &models.ListFormsResponse{
		Data:   forms,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// UpdateForm replaces the content of a form owned by ownerID.
// Concurrent updates are not isolated; the last write wins.
func (s *FormsService) UpdateForm(ctx context.Context, id uuid.UUID, ownerID string, content *models.FormContent) (*models.Form, error) {
	normalized, err := formdef.Normalize(*content)
	if err != nil {
		return nil, err
	}

	if _, err := s.authorize(ctx, id, ownerID); err != nil {
		return nil, err
	}

	form, err := s.repo.Update(ctx, id, &normalized)
	if err != nil {
		return nil, err
	}

	s.publicForms.Invalidate(id)

	return form, nil
}

// DeleteForm deletes a form owned by ownerID. Its responses are reaped asynchronously.
func (s *FormsService) DeleteForm(ctx context.Context, id uuid.UUID, ownerID string) error {
	if _, err := s.authorize(ctx, id, ownerID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publicForms.Invalidate(id)

	return nil
}

// authorize loads the form and checks that ownerID owns it.
func (s *FormsService) authorize(ctx context.Context, id uuid.UUID, ownerID string) (*models.Form, error) {
	form, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if ownerID == "" || form.OwnerID != ownerID {
		return nil, huberrors.NewForbiddenError("you do not own this form")
	}

	return form, nil
}
