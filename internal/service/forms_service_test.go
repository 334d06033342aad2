package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
)

func TestFormsService_CreateForm(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes before storing", func(t *testing.T) {
		repo := newMemFormsRepo()
		svc := NewFormsService(repo, FormsServiceOptions{})

		content := validContent()
		content.Title = "  Customer Survey  "
		content.WebhookURL = strPtr("https://discord.example/hook")

		form, err := svc.CreateForm(ctx, "owner-a", content)
		require.NoError(t, err)

		assert.Equal(t, "Customer Survey", form.Title)
		assert.Equal(t, "owner-a", form.OwnerID)
		assert.Nil(t, form.WebhookURL)

		for _, q := range form.Questions {
			assert.NotEmpty(t, q.ID)
		}
	})

	t.Run("validation failure writes nothing", func(t *testing.T) {
		repo := newMemFormsRepo()
		svc := NewFormsService(repo, FormsServiceOptions{})

		content := validContent()
		content.Title = "   "

		_, err := svc.CreateForm(ctx, "owner-a", content)
		require.ErrorIs(t, err, huberrors.ErrValidation)
		assert.Zero(t, repo.writes)
	})

	t.Run("empty owner is rejected", func(t *testing.T) {
		repo := newMemFormsRepo()
		svc := NewFormsService(repo, FormsServiceOptions{})

		_, err := svc.CreateForm(ctx, " ", validContent())
		require.ErrorIs(t, err, huberrors.ErrValidation)
		assert.Zero(t, repo.writes)
	})
}

func TestFormsService_UpdateForm_ForbiddenForOtherOwner(t *testing.T) {
	ctx := context.Background()
	repo := newMemFormsRepo()
	svc := NewFormsService(repo, FormsServiceOptions{})

	created, err := svc.CreateForm(ctx, "owner-a", validContent())
	require.NoError(t, err)

	writesBefore := repo.writes

	changed := validContent()
	changed.Title = "Hijacked"

	_, err = svc.UpdateForm(ctx, created.ID, "owner-b", changed)
	require.ErrorIs(t, err, huberrors.ErrForbidden)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Customer Survey", stored.Title)
	assert.Nil(t, stored.UpdatedAt)
	assert.Equal(t, writesBefore, repo.writes)
}

func TestFormsService_UpdateForm(t *testing.T) {
	ctx := context.Background()
	repo := newMemFormsRepo()
	svc := NewFormsService(repo, FormsServiceOptions{})

	created, err := svc.CreateForm(ctx, "owner-a", validContent())
	require.NoError(t, err)

	t.Run("switching to webhook clears receiver email", func(t *testing.T) {
		changed := validContent()
		changed.NotificationDestination = models.NotifyWebhook
		changed.WebhookURL = strPtr("https://discord.example/hook")

		updated, err := svc.UpdateForm(ctx, created.ID, "owner-a", changed)
		require.NoError(t, err)

		assert.Nil(t, updated.ReceiverEmail)
		require.NotNil(t, updated.WebhookURL)
		assert.NotNil(t, updated.UpdatedAt)
	})

	t.Run("unknown form is not found", func(t *testing.T) {
		_, err := svc.UpdateForm(ctx, uuid.New(), "owner-a", validContent())
		assert.ErrorIs(t, err, huberrors.ErrNotFound)
	})

	t.Run("invalid content is rejected before load", func(t *testing.T) {
		gets := repo.gets

		bad := validContent()
		bad.Questions = nil

		_, err := svc.UpdateForm(ctx, created.ID, "owner-a", bad)
		require.ErrorIs(t, err, huberrors.ErrValidation)
		assert.Equal(t, gets, repo.gets)
	})
}

func TestFormsService_DeleteForm(t *testing.T) {
	ctx := context.Background()
	repo := newMemFormsRepo()
	svc := NewFormsService(repo, FormsServiceOptions{})

	created, err := svc.CreateForm(ctx, "owner-a", validContent())
	require.NoError(t, err)

	err = svc.DeleteForm(ctx, created.ID, "owner-b")
	require.ErrorIs(t, err, huberrors.ErrForbidden)

	require.NoError(t, svc.DeleteForm(ctx, created.ID, "owner-a"))

	_, err = svc.GetForm(ctx, created.ID)
	assert.ErrorIs(t, err, huberrors.ErrNotFound)
}

func TestFormsService_GetPublicForm_CachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	repo := newMemFormsRepo()
	svc := NewFormsService(repo, FormsServiceOptions{})

	created, err := svc.CreateForm(ctx, "owner-a", validContent())
	require.NoError(t, err)

	gets := repo.gets

	_, err = svc.GetPublicForm(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.GetPublicForm(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, gets+1, repo.gets, "second read should be served from cache")

	changed := validContent()
	changed.Title = "Renamed"

	_, err = svc.UpdateForm(ctx, created.ID, "owner-a", changed)
	require.NoError(t, err)

	form, err := svc.GetPublicForm(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", form.Title)

	require.NoError(t, svc.DeleteForm(ctx, created.ID, "owner-a"))

	_, err = svc.GetPublicForm(ctx, created.ID)
	assert.ErrorIs(t, err, huberrors.ErrNotFound)
}

func TestFormsService_ListForms_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	repo := newMemFormsRepo()
	svc := NewFormsService(repo, FormsServiceOptions{})

	_, err := svc.CreateForm(ctx, "owner-a", validContent())
	require.NoError(t, err)
	_, err = svc.CreateForm(ctx, "owner-b", validContent())
	require.NoError(t, err)

	resp, err := svc.ListForms(ctx, "owner-a", nil)
	require.NoError(t, err)

	assert.Equal(t, defaultListLimit, resp.Limit)
	assert.Equal(t, int64(1), resp.Total)
	assert.Len(t, resp.Data, 1)
}
