package huberrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrors(t *testing.T) {
	errs := ValidationErrors{
		NewValidationError("title", "title is required"),
		NewValidationError("questions[0].text", "question text is required"),
	}

	t.Run("matches ErrValidation", func(t *testing.T) {
		assert.ErrorIs(t, errs, ErrValidation)
		assert.ErrorIs(t, fmt.Errorf("create form: %w", errs), ErrValidation)
	})

	t.Run("does not match other kinds", func(t *testing.T) {
		assert.NotErrorIs(t, errs, ErrNotFound)
		assert.NotErrorIs(t, errs, ErrForbidden)
	})

	t.Run("extractable with errors.As", func(t *testing.T) {
		var got ValidationErrors

		require.ErrorAs(t, fmt.Errorf("wrap: %w", errs), &got)
		assert.Equal(t, []string{"title", "questions[0].text"}, got.Fields())
	})

	t.Run("message lists fields", func(t *testing.T) {
		assert.Equal(t,
			"validation failed: title: title is required; questions[0].text: question text is required",
			errs.Error())
	})
}

func TestErrorKinds(t *testing.T) {
	storeErr := errors.New("connection reset")

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", NewNotFoundError("form", "form not found"), ErrNotFound},
		{"forbidden", NewForbiddenError("not your form"), ErrForbidden},
		{"store write", NewStoreWriteError("create form", storeErr), ErrStoreWrite},
		{"index missing", NewIndexMissingError("forms_owner_created_idx", "relation does not exist"), ErrIndexMissing},
		{"incomplete", NewIncompleteError([]string{"Name"}), ErrIncomplete},
		{"response persist", NewResponsePersistError(storeErr), ErrResponsePersist},
		{"notification", NewNotificationError("email", storeErr), ErrNotification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.target)
			assert.ErrorIs(t, fmt.Errorf("outer: %w", tt.err), tt.target)
			assert.NotErrorIs(t, tt.err, ErrValidation)
		})
	}
}

func TestNotFoundError_Resource(t *testing.T) {
	formErr := NewNotFoundError("form", "form not found")
	otherErr := NewNotFoundError("response", "")

	assert.ErrorIs(t, formErr, ErrFormNotFound)
	assert.ErrorIs(t, ErrFormNotFound, ErrNotFound)
	assert.ErrorIs(t, otherErr, ErrNotFound)
	assert.NotErrorIs(t, otherErr, ErrFormNotFound)
}

func TestIndexMissingError_IsStoreFailure(t *testing.T) {
	err := fmt.Errorf("list forms: %w", NewIndexMissingError("forms_owner_created_idx", "relation does not exist"))

	assert.ErrorIs(t, err, ErrIndexMissing)
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.NotErrorIs(t, NewStoreWriteError("create form", errors.New("boom")), ErrIndexMissing)

	var indexMissing *IndexMissingError

	require.ErrorAs(t, err, &indexMissing)
	assert.Equal(t, "forms_owner_created_idx", indexMissing.Index)
}

func TestWrappedCausesAreReachable(t *testing.T) {
	cause := errors.New("disk full")

	assert.ErrorIs(t, NewStoreWriteError("update form", cause), cause)
	assert.ErrorIs(t, NewResponsePersistError(cause), cause)
	assert.ErrorIs(t, NewNotificationError("webhook", cause), cause)
}

func TestIncompleteError_Message(t *testing.T) {
	err := NewIncompleteError([]string{"Your name", "Email"})
	assert.Equal(t, "required questions unanswered: Your name, Email", err.Error())
}

func TestIndexMissingError_Message(t *testing.T) {
	err := NewIndexMissingError("forms_owner_created_idx", `relation "forms" does not exist`)
	assert.Contains(t, err.Error(), "forms_owner_created_idx")
	assert.Contains(t, err.Error(), `relation "forms" does not exist`)
}
