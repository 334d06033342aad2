package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
)

// memFormsRepo is an in-memory FormsRepository.
type memFormsRepo struct {
	mu        sync.Mutex
	forms     map[uuid.UUID]models.Form
	gets      int
	writes    int
	listIDErr error
}

func newMemFormsRepo() *memFormsRepo {
	return &memFormsRepo{forms: make(map[uuid.UUID]models.Form)}
}

func (m *memFormsRepo) Create(_ context.Context, ownerID string, content *models.FormContent) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	f := models.Form{ID: uuid.Must(uuid.NewV7()), OwnerID: ownerID, FormContent: *content, CreatedAt: time.Now()}
	m.forms[f.ID] = f

	return &f, nil
}

func (m *memFormsRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets++

	f, ok := m.forms[id]
	if !ok {
		return nil, huberrors.NewNotFoundError("form", "form not found")
	}

	return &f, nil
}

func (m *memFormsRepo) ListByOwner(_ context.Context, ownerID string, _ *models.ListFormsFilters) ([]models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Form

	for _, f := range m.forms {
		if f.OwnerID == ownerID {
			out = append(out, f)
		}
	}

	return out, nil
}

func (m *memFormsRepo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	forms, _ := m.ListByOwner(ctx, ownerID, nil)

	return int64(len(forms)), nil
}

func (m *memFormsRepo) ListIDsByOwner(ctx context.Context, ownerID string) ([]uuid.UUID, error) {
	if m.listIDErr != nil {
		return nil, m.listIDErr
	}

	forms, _ := m.ListByOwner(ctx, ownerID, nil)

	ids := make([]uuid.UUID, 0, len(forms))
	for _, f := range forms {
		ids = append(ids, f.ID)
	}

	return ids, nil
}

func (m *memFormsRepo) Update(_ context.Context, id uuid.UUID, content *models.FormContent) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.forms[id]
	if !ok {
		return nil, huberrors.NewNotFoundError("form", "form not found")
	}

	m.writes++
	now := time.Now()
	f.FormContent = *content
	f.UpdatedAt = &now
	m.forms[id] = f

	return &f, nil
}

func (m *memFormsRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.forms[id]; !ok {
		return huberrors.NewNotFoundError("form", "form not found")
	}

	m.writes++
	delete(m.forms, id)

	return nil
}

// mockResponsesRepo is a ResponsesRepository with optional func overrides.
type mockResponsesRepo struct {
	mu        sync.Mutex
	appended  []models.Response
	AppendFn  func(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.Response, error)
	CountFn   func(ctx context.Context, formID uuid.UUID) (int64, error)
	ListFn    func(ctx context.Context, formID uuid.UUID, filters *models.ListResponsesFilters) ([]models.Response, error)
	countCall int
}

func (m *mockResponsesRepo) Append(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.Response, error) {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, formID, answers)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := models.Response{ID: uuid.Must(uuid.NewV7()), FormID: formID, Answers: answers, SubmittedAt: time.Now()}
	m.appended = append(m.appended, r)

	return &r, nil
}

func (m *mockResponsesRepo) CountByForm(ctx context.Context, formID uuid.UUID) (int64, error) {
	m.mu.Lock()
	m.countCall++
	m.mu.Unlock()

	if m.CountFn != nil {
		return m.CountFn(ctx, formID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64

	for _, r := range m.appended {
		if r.FormID == formID {
			n++
		}
	}

	return n, nil
}

func (m *mockResponsesRepo) ListByForm(ctx context.Context, formID uuid.UUID, filters *models.ListResponsesFilters) ([]models.Response, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, formID, filters)
	}

	return nil, nil
}

func (m *mockResponsesRepo) appendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.appended)
}

func strPtr(s string) *string { return &s }

func validContent() *models.FormContent {
	return &models.FormContent{
		Title: "Customer Survey",
		Questions: []models.Question{
			{Text: "Your name", Type: models.QuestionTypeShortText, IsRequired: true},
			{Text: "Comments", Type: models.QuestionTypeLongText},
		},
		NotificationDestination: models.NotifyEmail,
		ReceiverEmail:           strPtr("owner@example.com"),
	}
}
